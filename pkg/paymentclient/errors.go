package paymentclient

import "fmt"

// TransportError — единственный вид ошибки клиента: сеть недоступна,
// сервер ответил не 2xx или тело ответа не является JSON.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int    // 0, если ответа не было
	Body       []byte // тело ответа сервера, если было
	Err        error  // исходная причина
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
