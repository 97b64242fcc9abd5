package domain

// Realtime event names.
const (
	EventAnswerToken = "answer_token"
	EventError       = "error"
	EventPong        = "pong"
)

// AnswerTokenEvent is pushed to the asking user's connections, one fragment
// at a time. RequestToken lets the client attribute the fragment to the right
// in-flight question.
type AnswerTokenEvent struct {
	Event        string `json:"event"`
	RequestToken string `json:"request_token"`
	Token        string `json:"token"`
}

func NewAnswerTokenEvent(requestToken, token string) *AnswerTokenEvent {
	return &AnswerTokenEvent{
		Event:        EventAnswerToken,
		RequestToken: requestToken,
		Token:        token,
	}
}

// ErrorEvent is sent on unrecognised client frames.
type ErrorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const ErrCodeBadRequest = "BAD_REQUEST"

func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Event:   EventError,
		Code:    code,
		Message: message,
	}
}
