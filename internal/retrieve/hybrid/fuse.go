package hybrid

// fuseWeighted normalizes each list to [0,1] by max-score division, then
// combines with the caller's per-channel weights. A chunk present in only
// one list contributes that list's normalized score and 0 from the other.
func fuseWeighted(dense, sparse []rankedHit, wDense, wSparse float64) map[string]float64 {
	denseNorm := normalize(dense)
	sparseNorm := normalize(sparse)

	combined := make(map[string]float64, len(denseNorm)+len(sparseNorm))
	for id, score := range denseNorm {
		combined[id] += wDense * score
	}
	for id, score := range sparseNorm {
		combined[id] += wSparse * score
	}
	return combined
}

func normalize(hits []rankedHit) map[string]float64 {
	norm := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return norm
	}
	max := hits[0].Score
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		for _, h := range hits {
			norm[h.ChunkID] = 0
		}
		return norm
	}
	for _, h := range hits {
		norm[h.ChunkID] = h.Score / max
	}
	return norm
}

// fuseRRF combines two ranked lists via reciprocal rank fusion:
// combined = sum over lists of 1/(60 + rank_in_list). Symmetric in the
// order the two lists are passed.
func fuseRRF(dense, sparse []rankedHit) map[string]float64 {
	combined := make(map[string]float64, len(dense)+len(sparse))
	for _, h := range dense {
		combined[h.ChunkID] += 1.0 / float64(rrfK+h.Rank)
	}
	for _, h := range sparse {
		combined[h.ChunkID] += 1.0 / float64(rrfK+h.Rank)
	}
	return combined
}
