package mobile

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// Touch represents a single touch point.
type Touch struct {
	ID        ebiten.TouchID
	X, Y      int
	StartX    int
	StartY    int
	StartTime time.Time
	Active    bool
}

// TouchInputHandler tracks the lifecycle of every active touch point. The
// joystick layout consumes raw touches directly; there is no gesture layer
// because a twin-stick control scheme has no taps or swipes to recognize,
// only held contacts.
type TouchInputHandler struct {
	touches map[ebiten.TouchID]*Touch
}

// NewTouchInputHandler creates a new touch input handler.
func NewTouchInputHandler() *TouchInputHandler {
	return &TouchInputHandler{
		touches: make(map[ebiten.TouchID]*Touch),
	}
}

// Update processes touch input from Ebiten. Must be called every frame.
func (h *TouchInputHandler) Update() {
	activeTouchIDs := ebiten.TouchIDs()
	activeSet := make(map[ebiten.TouchID]bool)

	for _, id := range activeTouchIDs {
		x, y := ebiten.TouchPosition(id)
		activeSet[id] = true

		if touch, exists := h.touches[id]; exists {
			touch.X = x
			touch.Y = y
		} else {
			h.touches[id] = &Touch{
				ID:        id,
				X:         x,
				Y:         y,
				StartX:    x,
				StartY:    y,
				StartTime: time.Now(),
				Active:    true,
			}
		}
	}

	for id, touch := range h.touches {
		if !activeSet[id] {
			touch.Active = false
			delete(h.touches, id)
		}
	}
}

// GetActiveTouches returns all currently active touches.
func (h *TouchInputHandler) GetActiveTouches() []*Touch {
	touches := make([]*Touch, 0, len(h.touches))
	for _, touch := range h.touches {
		if touch.Active {
			touches = append(touches, touch)
		}
	}
	return touches
}

// GetTouchCount returns the number of active touches.
func (h *TouchInputHandler) GetTouchCount() int {
	count := 0
	for _, touch := range h.touches {
		if touch.Active {
			count++
		}
	}
	return count
}
