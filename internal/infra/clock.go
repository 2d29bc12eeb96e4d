package infra

import (
	"time"

	"github.com/jpaulw/macmaint/internal/domain"
)

// SystemClock implements domain.Clock with the real time.
type SystemClock struct{}

// NewSystemClock creates a clock backed by time.Now.
func NewSystemClock() domain.Clock { return SystemClock{} }

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// Ensure SystemClock implements domain.Clock.
var _ domain.Clock = SystemClock{}
