package bus

import (
	"fmt"
	"os"
)

// ConsumerName derives a stable per-process consumer name for a stage.
// Consumer names only need to be unique within a group while the
// process lives; the hostname works in both containers and bare metal.
func ConsumerName(stage string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("%s-%d", stage, os.Getpid())
	}
	return stage + "-" + host
}
