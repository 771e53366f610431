package health

type Input struct{}

type Output struct {
	Body Response
}

// Response: статус сервиса и, если подключено, хранилища списков
type Response struct {
	Status  string `json:"status" example:"OK" doc:"Health status of the service"`
	Storage string `json:"storage,omitempty" example:"OK" doc:"Storage health, omitted for the in-memory store"`
}
