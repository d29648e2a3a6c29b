package core

import (
	"fmt"

	"cryocare-backend/internal/core/types"
)

// InputTomograms is the pair of noise-independent inputs of the data
// preparation and prediction units. Either one set whose tomograms carry
// their half maps (linked), or one set of even and one set of odd tomograms.
type InputTomograms struct {
	AreEvenOddLinked bool

	Tomograms *types.TomogramSet

	EvenTomograms *types.TomogramSet
	OddTomograms  *types.TomogramSet
}

type TomogramPair struct {
	TsId string
	Even types.Tomogram
	Odd  types.Tomogram
}

// Validate reports missing inputs. The inputs depend on the linked flag, so
// none of them can be required on their own.
func (in InputTomograms) Validate() []string {
	var msgs []string
	if in.AreEvenOddLinked {
		if in.Tomograms == nil {
			return append(msgs, `If the parameter "Are odd-even associated to the Tomograms?" was set to Yes, a set `+
				`of tomograms with the even/odd sets associated to its metadata must be introduced.`)
		}
		for _, t := range in.Tomograms.Tomograms {
			if !t.HasHalfMaps() {
				msgs = append(msgs, fmt.Sprintf("Tomogram %s has no even/odd half maps associated.", t.TsId))
			}
		}
		if in.Tomograms.Size() == 0 {
			msgs = append(msgs, "The introduced set of tomograms is empty.")
		}
		return msgs
	}

	if in.EvenTomograms == nil || in.OddTomograms == nil {
		return append(msgs, `If the parameter "Are odd-even associated to the Tomograms?" was set to No, a set `+
			`of even tomograms and a set of odd tomograms must be introduced.`)
	}
	if in.EvenTomograms.Size() == 0 {
		msgs = append(msgs, "The introduced set of even tomograms is empty.")
	}
	return msgs
}

// ValidateSets checks that separate even and odd sets are compatible.
func (in InputTomograms) ValidateSets() []string {
	if in.AreEvenOddLinked || in.EvenTomograms == nil || in.OddTomograms == nil {
		return nil
	}
	var msgs []string
	if msg := CheckSamplingRate(in.EvenTomograms, in.OddTomograms); msg != "" {
		msgs = append(msgs, msg)
	}
	if msg := CheckInputTomoSetsSize(in.EvenTomograms, in.OddTomograms); msg != "" {
		msgs = append(msgs, msg)
	}
	return msgs
}

// Reference is the set the outputs copy their info from.
func (in InputTomograms) Reference() *types.TomogramSet {
	if in.AreEvenOddLinked {
		return in.Tomograms
	}
	return in.EvenTomograms
}

func (in InputTomograms) Dims() types.Dimensions {
	if ref := in.Reference(); ref != nil {
		return ref.Dims
	}
	return types.Dimensions{}
}

// Pairs matches every even tomogram with its odd counterpart. Separate sets
// are matched by position and the even tsId is used for both.
func (in InputTomograms) Pairs() ([]TomogramPair, error) {
	if in.AreEvenOddLinked {
		if in.Tomograms == nil {
			return nil, fmt.Errorf("no tomograms introduced")
		}
		pairs := make([]TomogramPair, 0, in.Tomograms.Size())
		for _, t := range in.Tomograms.Tomograms {
			if !t.HasHalfMaps() {
				return nil, fmt.Errorf("tomogram %s has no half maps", t.TsId)
			}
			pairs = append(pairs, TomogramPair{
				TsId: t.TsId,
				Even: t.WithLocation(t.EvenFile),
				Odd:  t.WithLocation(t.OddFile),
			})
		}
		return pairs, nil
	}

	if in.EvenTomograms == nil || in.OddTomograms == nil {
		return nil, fmt.Errorf("even and odd tomograms must be introduced")
	}
	if in.EvenTomograms.Size() != in.OddTomograms.Size() {
		return nil, fmt.Errorf("even set has %d tomograms but odd set has %d", in.EvenTomograms.Size(), in.OddTomograms.Size())
	}

	pairs := make([]TomogramPair, 0, in.EvenTomograms.Size())
	for i, evenTomo := range in.EvenTomograms.Tomograms {
		oddTomo := in.OddTomograms.Tomograms[i]
		oddTomo.TsId = evenTomo.TsId
		pairs = append(pairs, TomogramPair{TsId: evenTomo.TsId, Even: evenTomo, Odd: oddTomo})
	}
	return pairs, nil
}
