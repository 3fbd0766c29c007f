package hybrid

import "testing"

func TestFuseWeightedNormalizesByMax(t *testing.T) {
	dense := []rankedHit{{ChunkID: "a", Score: 0.8}, {ChunkID: "b", Score: 0.4}}
	sparse := []rankedHit{{ChunkID: "a", Score: 10}, {ChunkID: "c", Score: 5}}

	combined := fuseWeighted(dense, sparse, 0.5, 0.5)

	if got := combined["a"]; got != 0.5*1.0+0.5*1.0 {
		t.Fatalf("chunk a = %f", got)
	}
	if got := combined["b"]; got != 0.5*0.5 {
		t.Fatalf("chunk b = %f", got)
	}
	if got := combined["c"]; got != 0.5*0.5 {
		t.Fatalf("chunk c = %f", got)
	}
}

func TestFuseRRFSymmetricInListOrder(t *testing.T) {
	dense := []rankedHit{{ChunkID: "a", Rank: 1}, {ChunkID: "b", Rank: 2}}
	sparse := []rankedHit{{ChunkID: "b", Rank: 1}, {ChunkID: "a", Rank: 2}}

	ab := fuseRRF(dense, sparse)
	ba := fuseRRF(sparse, dense)

	if ab["a"] != ba["a"] || ab["b"] != ba["b"] {
		t.Fatalf("fusion not symmetric: %v vs %v", ab, ba)
	}
	if ab["a"] != ab["b"] {
		t.Fatalf("expected equal combined scores for symmetric ranks, got a=%f b=%f", ab["a"], ab["b"])
	}
}

func TestNormalizeHandlesAllZeroScores(t *testing.T) {
	hits := []rankedHit{{ChunkID: "a", Score: 0}, {ChunkID: "b", Score: 0}}
	norm := normalize(hits)
	if norm["a"] != 0 || norm["b"] != 0 {
		t.Fatalf("got %v", norm)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if norm := normalize(nil); len(norm) != 0 {
		t.Fatalf("expected empty map, got %v", norm)
	}
}
