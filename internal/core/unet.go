package core

type depthReference struct {
	patchSize int
	depth     int
}

var unetDepthReferences = []depthReference{
	{patchSize: 48, depth: 2},
	{patchSize: 72, depth: 3},
	{patchSize: 96, depth: 4},
}

// UNetDepth picks the depth of the reference patch size closest to patchSize.
// Ties go to the shallower network.
func UNetDepth(patchSize int) int {
	best := unetDepthReferences[0]
	bestDist := abs(patchSize - best.patchSize)
	for _, ref := range unetDepthReferences[1:] {
		if d := abs(patchSize - ref.patchSize); d < bestDist {
			best, bestDist = ref, d
		}
	}
	return best.depth
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
