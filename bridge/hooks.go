package bridge

import (
	"time"

	"github.com/keerthikanthn/streambridge/streams"
)

// Hooks observe the delivery path. Every field is optional; nil fields are
// skipped. OnReceive fires before a message is dispatched and OnProcessed
// after, whatever the outcome; OnTerminate receives a nil error on normal
// completion.
type Hooks struct {
	OnSubscribe func()
	OnReceive   func(msg *streams.Message)
	OnProcessed func(msg *streams.Message, elapsed time.Duration)
	OnFailure   func(err error)
	OnTerminate func(err error)
	OnCancel    func()
}
