package traffic

import "errors"

var (
	// ErrOutOfBounds is returned for any coordinate outside the grid.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrCellOccupied is returned when placing a car on a cell that already holds one.
	ErrCellOccupied = errors.New("cell already holds a vehicle")
	// ErrNotOccupant is returned when vacating a cell the car is not on.
	ErrNotOccupant = errors.New("vehicle is not on this cell")
	// ErrPathNotFound means the planner exhausted the frontier or its expansion cap.
	ErrPathNotFound = errors.New("path not found")
	// ErrNoReachableDestination means spawning gave up after its bounded retries.
	ErrNoReachableDestination = errors.New("no reachable destination")
	// ErrMalformedLayout is fatal at initialisation.
	ErrMalformedLayout = errors.New("malformed layout")
)

// ErrNoSpawnCell means every spawn corner was taken or unusable this tick.
var ErrNoSpawnCell = errors.New("no free spawn cell")
