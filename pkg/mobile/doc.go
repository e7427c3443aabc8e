// Package mobile provides the touch controls for the iOS/Android client:
// a dual virtual-joystick layout (left stick moves, right stick aims) with
// thumb buttons for fire and roll.
//
// Touch input is processed through the TouchInputHandler, which tracks all
// active touches via ebiten.TouchIDs(); the joystick layout consumes those
// raw touches each frame and exposes the same movement/aim axes and button
// state the desktop keyboard/mouse path produces, so cmd/mobile can build
// an engine.TickInput the simulation cannot tell apart from desktop input.
//
// Example usage:
//
//	layout := mobile.NewDualJoystickLayout(screenWidth, screenHeight)
//	layout.Update()
//	moveX, moveY := layout.GetMovementDirection()
//	angle := layout.GetAimAngle()
//	firing := layout.IsShootHeld()
package mobile
