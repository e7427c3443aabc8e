package clientgame

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/hollowtick/skirmish/pkg/engine"
)

// GatherKeyboardInput reads the current keyboard/mouse state into one
// TickInput: WASD to move, mouse to aim, left button to shoot. This is the
// desktop (cmd/client) InputFunc; cmd/mobile supplies its own built on
// pkg/mobile's virtual dual joystick instead.
func GatherKeyboardInput() engine.TickInput {
	var buttons uint16
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		buttons |= engine.ButtonMoveUp
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		buttons |= engine.ButtonMoveDown
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		buttons |= engine.ButtonMoveLeft
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		buttons |= engine.ButtonMoveRight
	}
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		buttons |= engine.ButtonShoot
	}
	if ebiten.IsKeyPressed(ebiten.KeyR) {
		buttons |= engine.ButtonReload
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftLeft) {
		buttons |= engine.ButtonRoll
	}
	if ebiten.IsKeyPressed(ebiten.KeySpace) {
		buttons |= engine.ButtonJump
	}

	var moveX, moveY float64
	if buttons&engine.ButtonMoveLeft != 0 {
		moveX -= 1
	}
	if buttons&engine.ButtonMoveRight != 0 {
		moveX += 1
	}
	if buttons&engine.ButtonMoveUp != 0 {
		moveY -= 1
	}
	if buttons&engine.ButtonMoveDown != 0 {
		moveY += 1
	}

	cursorX, cursorY := ebiten.CursorPosition()
	aimAngle := math.Atan2(float64(cursorY)-240, float64(cursorX)-320)

	return engine.TickInput{
		Buttons:      buttons,
		AimAngle:     aimAngle,
		MoveX:        moveX,
		MoveY:        moveY,
		CursorWorldX: float64(cursorX),
		CursorWorldY: float64(cursorY),
	}
}
