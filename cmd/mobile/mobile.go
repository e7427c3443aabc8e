// Package mobile provides the ebitenmobile binding for Android/iOS builds.
// It drives the same pkg/clientgame simulation as the desktop cmd/client,
// reading input from pkg/mobile's virtual dual-joystick layout instead of
// keyboard and mouse.
package mobile

import (
	"github.com/hajimehoshi/ebiten/v2"
	emobile "github.com/hajimehoshi/ebiten/v2/mobile"
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/clientgame"
	"github.com/hollowtick/skirmish/pkg/engine"
	"github.com/hollowtick/skirmish/pkg/logging"
	"github.com/hollowtick/skirmish/pkg/mobile"
)

const (
	screenWidth  = 720
	screenHeight = 1280
)

var (
	game   *clientgame.Game
	layout *mobile.DualJoystickLayout
	logger *logrus.Logger
)

func init() {
	logger = logging.TestUtilityLogger("mobile")
}

// Init initializes the single-player game for mobile platforms. This must
// be called before any other functions. A connected multiplayer session is
// not yet wired up for mobile (no on-device server address entry UI);
// follow-on work can call clientgame.NewMultiplayer the way cmd/client does.
func Init() {
	if game != nil {
		return
	}

	layout = mobile.NewDualJoystickLayout(screenWidth, screenHeight)
	game = clientgame.NewSinglePlayer(logger.WithField("component", "mobile"), screenWidth, screenHeight, gatherJoystickInput)
	game.SetOverlay(layout.Draw)

	logger.Info("mobile game initialized")
	emobile.SetGame(game)
}

func gatherJoystickInput() engine.TickInput {
	layout.Update()

	var buttons uint16
	moveX, moveY := layout.GetMovementDirection()
	if moveX < -0.2 {
		buttons |= engine.ButtonMoveLeft
	}
	if moveX > 0.2 {
		buttons |= engine.ButtonMoveRight
	}
	if moveY < -0.2 {
		buttons |= engine.ButtonMoveUp
	}
	if moveY > 0.2 {
		buttons |= engine.ButtonMoveDown
	}
	if layout.IsShootHeld() {
		buttons |= engine.ButtonShoot
	}
	if layout.IsRollHeld() {
		buttons |= engine.ButtonRoll
	}

	return engine.TickInput{
		Buttons:  buttons,
		AimAngle: layout.GetAimAngle(),
		MoveX:    moveX,
		MoveY:    moveY,
	}
}

// Start starts the game loop. This is called automatically by the mobile
// platform.
func Start() {
	if game == nil {
		Init()
	}
}

// Update reports whether the game loop should keep running. The actual
// per-frame Game.Update()/Draw() calls are driven by the ebitenmobile
// runtime through emobile.SetGame, not by this function.
func Update() bool {
	return game != nil
}

// GetScreenWidth returns the screen width.
func GetScreenWidth() int {
	return screenWidth
}

// GetScreenHeight returns the screen height.
func GetScreenHeight() int {
	return screenHeight
}

var _ ebiten.Game = (*clientgame.Game)(nil)
