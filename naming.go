package pktdelay

//
// Engine instance naming, for ambient log messages when more than one
// [Engine] exists in the same process (e.g. in tests).
//

import (
	"fmt"
	"sync/atomic"
)

// engineID is the unique ID most recently assigned to an [Engine].
var engineID = &atomic.Int64{}

// newEngineName constructs a new, unique name for an [Engine].
func newEngineName() string {
	return fmt.Sprintf("engine%d", engineID.Add(1))
}
