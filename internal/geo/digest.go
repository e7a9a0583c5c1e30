package geo

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
)

// digest fingerprints the dataset content. Two stores holding the same data
// get the same digest regardless of process or reload count, so it is safe to
// use in keys of a cache shared between instances.
func digest(ds *Dataset) string {
	w := digestWriter{h: xxhash.New()}
	w.num(len(ds.Districts))
	for _, d := range ds.Districts {
		w.str(d.Name)
		w.str(d.County)
		w.num(len(d.Boundary))
		for _, poly := range d.Boundary {
			w.num(len(poly))
			for _, ring := range poly {
				w.points(ring)
			}
		}
	}
	w.num(len(ds.Shops))
	for _, s := range ds.Shops {
		w.num(int(s.ID))
		w.str(s.Name)
		w.str(s.Category)
		w.point(s.Point)
	}
	w.num(len(ds.BusStops))
	for _, s := range ds.BusStops {
		w.num(int(s.ID))
		w.str(s.Name)
		w.point(s.Point)
	}
	w.num(len(ds.Routes))
	for _, r := range ds.Routes {
		w.num(int(r.ID))
		w.str(r.RouteName)
		w.str(r.Headsign)
		w.str(r.RouteLongName)
		w.num(len(r.Line))
		for _, ls := range r.Line {
			w.points(ls)
		}
	}
	return strconv.FormatUint(w.h.Sum64(), 16)
}

type digestWriter struct {
	h   *xxhash.Digest
	buf [8]byte
}

func (w *digestWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:], v)
	w.h.Write(w.buf[:])
}

func (w *digestWriter) num(n int) { w.u64(uint64(n)) }

// Strings are length-prefixed so ("ab","c") and ("a","bc") differ.
func (w *digestWriter) str(s string) {
	w.num(len(s))
	w.h.WriteString(s)
}

func (w *digestWriter) point(p orb.Point) {
	w.u64(math.Float64bits(p[0]))
	w.u64(math.Float64bits(p[1]))
}

func (w *digestWriter) points(ps []orb.Point) {
	w.num(len(ps))
	for _, p := range ps {
		w.point(p)
	}
}
