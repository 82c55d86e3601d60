// Package notify delivers operator-facing fleet events to chat. Delivery
// is best-effort: a broken notifier is logged and never blocks a scan.
package notify

import "log"

// Notifier receives fleet events worth a human's attention.
type Notifier interface {
	// BuilderDisabled fires when a builder is taken out of rotation.
	BuilderDisabled(builder, note string)
	// Digest delivers a periodic fleet summary.
	Digest(text string)
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) BuilderDisabled(string, string) {}
func (Nop) Digest(string)                  {}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) BuilderDisabled(builder, note string) {
	for _, n := range m {
		n.BuilderDisabled(builder, note)
	}
}

func (m Multi) Digest(text string) {
	for _, n := range m {
		n.Digest(text)
	}
}

func logSendErr(platform string, err error) {
	if err != nil {
		log.Printf("notify: %s send failed: %v", platform, err)
	}
}
