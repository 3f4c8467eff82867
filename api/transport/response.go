package transport

import "encoding/json"

// Envelope is the JSON wrapper every endpoint responds with. Notice carries
// user-facing lifecycle messages (verification reminders, idle warnings) that
// are informational rather than errors.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Notice string      `json:"notice,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewNotice returns a success envelope whose payload is a message for the
// user rather than resource data.
func NewNotice(notice string, data interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Notice: notice,
	}
}

func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String renders the envelope as JSON, best-effort, for log lines.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
