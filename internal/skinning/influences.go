// Package skinning prepares skinned meshes for GPU deformation: it reduces
// joint influences to four per vertex and tracks the joint transforms of
// the current pose.
package skinning

import (
	"errors"
	"fmt"
	"sort"
)

// MaxInfluences is the number of joint influences the vertex shader reads.
const MaxInfluences = 4

// ErrInfluenceCount is returned when influence arrays do not line up.
var ErrInfluenceCount = errors.New("skinning: influence arrays do not match")

type influence struct {
	joint  int32
	weight float32
}

// NormalizeInfluences reduces per-vertex influences to MaxInfluences. Each
// vertex keeps its heaviest influences (ties keep authored order), padded
// with zero-weight joint 0, and the kept weights are rescaled to sum to 1.
// A vertex whose kept weights sum to zero gets its first kept joint at
// full weight. The result holds MaxInfluences entries per vertex.
func NormalizeInfluences(indices []int32, weights []float32, perVertex int) ([]int32, []float32, error) {
	if perVertex <= 0 {
		return nil, nil, fmt.Errorf("%w: %d influences per vertex", ErrInfluenceCount, perVertex)
	}
	if len(indices) != len(weights) || len(indices)%perVertex != 0 {
		return nil, nil, fmt.Errorf("%w: %d indices, %d weights, %d per vertex",
			ErrInfluenceCount, len(indices), len(weights), perVertex)
	}
	numVerts := len(indices) / perVertex
	outJoints := make([]int32, numVerts*MaxInfluences)
	outWeights := make([]float32, numVerts*MaxInfluences)

	scratch := make([]influence, perVertex)
	for v := 0; v < numVerts; v++ {
		for k := range scratch {
			scratch[k] = influence{joint: indices[v*perVertex+k], weight: weights[v*perVertex+k]}
		}
		if perVertex > MaxInfluences {
			sort.SliceStable(scratch, func(a, b int) bool { return scratch[a].weight > scratch[b].weight })
		}
		kept := scratch
		if len(kept) > MaxInfluences {
			kept = kept[:MaxInfluences]
		}

		var sum float32
		for _, in := range kept {
			if in.weight > 0 {
				sum += in.weight
			}
		}
		base := v * MaxInfluences
		for k, in := range kept {
			outJoints[base+k] = in.joint
			if sum > 0 && in.weight > 0 {
				outWeights[base+k] = in.weight / sum
			}
		}
		if sum == 0 {
			outWeights[base] = 1
		}
	}
	return outJoints, outWeights, nil
}
