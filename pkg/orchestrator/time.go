package orchestrator

import "time"

// nowFunc is indirected so tests can pin processing time without sleeping
// across real renewal windows.
var nowFunc = time.Now
