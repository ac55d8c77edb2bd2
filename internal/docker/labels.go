package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys stamped on every container the rig starts. Cleanup and
// discovery key off these, so stale simulators from a crashed run can be
// found and removed.
const (
	LabelProject  = "rig.project"
	LabelRunID    = "rig.run_id"
	LabelAuxAlias = "rig.aux.alias"
	LabelImage    = "rig.image"
)

// BuildLabels creates the standard label set for rig-managed containers.
func BuildLabels(runID, auxAlias, image string) map[string]string {
	return map[string]string{
		LabelProject:  "true",
		LabelRunID:    runID,
		LabelAuxAlias: auxAlias,
		LabelImage:    image,
	}
}

// GenerateRunID creates a new UUID for one rig session. Every session
// gets its own run ID so concurrent rigs on one host never collide.
func GenerateRunID() string {
	return uuid.New().String()
}

// ContainerName returns the container name for a simulator auxiliary.
func ContainerName(runID, auxAlias string) string {
	return fmt.Sprintf("rig-%s-%s", auxAlias, runID[:8])
}
