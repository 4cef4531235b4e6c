package pktdelay

//
// Diversion handle: platform-independent pieces shared between the
// real Windows binding (divert_windows.go) and the non-Windows stub
// (divert_other.go).
//

// Layer selects the network layer a diversion handle operates at.
// Only LayerNetwork is defined here; other layers exist in the
// underlying driver but are out of scope for this engine. The engine
// itself does not choose a layer: the handle-opening closure passed to
// NewEngine does.
type Layer int32

// LayerNetwork is the driver's network layer, for passing to
// OpenWindowsDivert.
const LayerNetwork Layer = 0
