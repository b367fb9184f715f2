package telemetry

import "fmt"

// ValidationError — коллектор ответил 4xx: до него дотянулись, но запрос отвергнут.
// Отличаем от сетевых ошибок: probe считает такой endpoint достижимым,
// а Circuit Breaker не должен открываться из-за кривого запроса.
type ValidationError struct {
	Status int
	Body   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("collector rejected request: status %d (%s)", e.Status, e.Body)
}
