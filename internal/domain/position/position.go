// Package position вычисляет ключи сортировки списков и задач.
//
// Позиция: число с плавающей точкой. Новые элементы получают шаг Stride
// за текущим максимумом, вставка между соседями берет середину, поэтому
// соседей никогда не приходится перенумеровывать.
package position

// Stride: шаг между соседними позициями.
const Stride = 1000.0

// Next возвращает позицию для нового элемента в конце по убыванию.
func Next(positions []float64) float64 {
	if len(positions) == 0 {
		return Stride
	}
	max := positions[0]
	for _, p := range positions[1:] {
		if p > max {
			max = p
		}
	}
	if max == 0 {
		return Stride
	}
	return max + Stride
}

// Between возвращает позицию между двумя соседями.
func Between(a, b float64) float64 {
	return (a + b) / 2
}

// Reorder раздает позиции n элементам в порядке отображения (первый получает наибольшую).
func Reorder(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(n-i) * Stride
	}
	return out
}
