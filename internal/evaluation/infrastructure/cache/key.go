package cache

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	detection "falldetect/internal/detection/domain"
	evaluation "falldetect/internal/evaluation/domain"
)

// Fingerprint hashes recording ids, labels, rates and samples of a corpus.
func Fingerprint(corpus []evaluation.Recording) string {
	h := xxhash.New()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	for _, rec := range corpus {
		_, _ = h.WriteString(rec.ID)
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(string(rec.Label))
		_, _ = h.WriteString("|")
		if rec.LoadErr != nil {
			_, _ = h.WriteString("err")
			continue
		}
		writeFloat(rec.Series.SamplingFreq())
		n := rec.Series.Len()
		_, _ = h.WriteString(strconv.Itoa(n))
		for i := 0; i < n; i++ {
			s := rec.Series.At(i)
			writeFloat(s.X)
			writeFloat(s.Y)
			writeFloat(s.Z)
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Key identifies the matrix of one config on one corpus.
// SamplingFreq is left out: evaluation runs at each recording's rate, which the fingerprint covers.
func Key(cfg detection.DetectorConfig, fingerprint string) string {
	return fmt.Sprintf("%s:%g:%g:%g:%g:%g:%g:%d",
		fingerprint,
		cfg.ImpactThresh, cfg.MotionlessThresh, cfg.AngleThreshDeg,
		cfg.PostImpactMS, cfg.MotionlessMS,
		cfg.PostureWindowMS, cfg.MaxRewinds)
}
