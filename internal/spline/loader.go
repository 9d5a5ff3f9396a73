package spline

import (
	"encoding/json"
	"fmt"
	"os"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/pkg/core"
)

// TrackFile is the on-disk traffic spline format: one polyline per lane,
// plus explicit junction edges between lanes.
type TrackFile struct {
	Name      string         `json:"name"`
	Longitude float64        `json:"longitude"`
	Latitude  float64        `json:"latitude"`
	Lanes     []LaneFile     `json:"lanes"`
	Junctions []JunctionFile `json:"junctions"`
}

// LaneFile is one lane polyline. Closed lanes wrap their last point back to
// the first.
type LaneFile struct {
	Points [][3]float64 `json:"points"`
	Closed bool         `json:"closed"`
}

// JunctionFile is a directed branch edge added on top of the lane
// polylines.
type JunctionFile struct {
	From int32 `json:"from"`
	To   int32 `json:"to"`
}

// TrackInfo is the track metadata carried alongside the graph.
type TrackInfo struct {
	Name     string
	Location geom.Point
}

// Load reads a track file and builds the spline. laneWidthMeters bounds the
// sibling search: points of other lanes beyond 2.5 lane widths are not
// considered siblings.
func Load(path string, laneWidthMeters float64) (*Spline, *TrackInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading track file: %w", err)
	}

	var tf TrackFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, nil, fmt.Errorf("parsing track file %s: %w", path, err)
	}
	if len(tf.Lanes) == 0 {
		return nil, nil, fmt.Errorf("track file %s has no lanes", path)
	}

	location, err := geo.TrackLocation3857(tf.Longitude, tf.Latitude)
	if err != nil {
		return nil, nil, fmt.Errorf("track file %s: %w", path, err)
	}

	s, err := FromLanes(tf.Lanes, tf.Junctions, laneWidthMeters)
	if err != nil {
		return nil, nil, fmt.Errorf("track file %s: %w", path, err)
	}

	return s, &TrackInfo{Name: tf.Name, Location: location}, nil
}

// FromLanes links lane polylines into a point graph: next/previous along
// each lane, junction branches across lanes, forward vectors and segment
// lengths from the geometry, lane siblings by proximity.
func FromLanes(lanes []LaneFile, junctions []JunctionFile, laneWidthMeters float64) (*Spline, error) {
	var points []Point
	var runs [][]int32

	for _, lane := range lanes {
		if len(lane.Points) < 2 {
			return nil, fmt.Errorf("lane with %d points, need at least 2", len(lane.Points))
		}
		run := make([]int32, 0, len(lane.Points))
		base := int32(len(points))
		for i, p := range lane.Points {
			id := base + int32(i)
			points = append(points, Point{
				ID:         id,
				Position:   core.Position3D{X: p[0], Y: p[1], Z: p[2]},
				NextID:     NoPoint,
				PreviousID: NoPoint,
			})
			run = append(run, id)
		}
		// link along the lane
		for i := range run {
			if i+1 < len(run) {
				points[run[i]].NextID = run[i+1]
				points[run[i+1]].PreviousID = run[i]
			} else if lane.Closed {
				points[run[i]].NextID = run[0]
				points[run[0]].PreviousID = run[i]
			}
		}
		runs = append(runs, run)
	}

	// forward vectors and segment lengths
	for i := range points {
		p := &points[i]
		if p.NextID != NoPoint {
			delta := geo.Sub(points[p.NextID].Position, p.Position)
			p.Length = geo.Length(delta)
			p.Forward = geo.Normalize(delta)
		} else if p.PreviousID != NoPoint {
			// dead end keeps the previous segment's heading
			p.Forward = points[p.PreviousID].Forward
		}
	}

	branchMap := make(map[int32][]int32)
	for _, j := range junctions {
		if int(j.From) >= len(points) || int(j.To) >= len(points) || j.From < 0 || j.To < 0 {
			return nil, fmt.Errorf("junction %d->%d references unknown point", j.From, j.To)
		}
		if natural := points[j.From].NextID; natural != NoPoint && len(branchMap[j.From]) == 0 {
			branchMap[j.From] = append(branchMap[j.From], natural)
		}
		branchMap[j.From] = append(branchMap[j.From], j.To)
	}

	s := New(points, branchMap)
	s.linkSiblings(runs, laneWidthMeters)
	return s, nil
}

// linkSiblings fills each point's LaneIDs with the nearest point of every
// other lane run within the sibling radius.
func (s *Spline) linkSiblings(runs [][]int32, laneWidthMeters float64) {
	s.laneRuns = runs
	if len(runs) < 2 {
		return
	}
	radiusSq := laneWidthMeters * 2.5 * laneWidthMeters * 2.5

	runOf := make([]int, len(s.points))
	for ri, run := range runs {
		for _, id := range run {
			runOf[id] = ri
		}
	}

	for i := range s.points {
		p := &s.points[i]
		best := map[int]int32{}    // run index -> nearest sibling id
		bestD := map[int]float64{} // run index -> its distance

		center := keyFor(p.Position)
		for dx := int32(-1); dx <= 1; dx++ {
			for dz := int32(-1); dz <= 1; dz++ {
				for _, id := range s.lookup[cellKey{x: center.x + dx, z: center.z + dz}] {
					ri := runOf[id]
					if ri == runOf[p.ID] {
						continue
					}
					d := geo.DistanceSquared(p.Position, s.points[id].Position)
					if d > radiusSq {
						continue
					}
					if cur, ok := bestD[ri]; !ok || d < cur {
						best[ri] = id
						bestD[ri] = d
					}
				}
			}
		}

		if len(best) > 0 {
			lanes := make([]int32, 0, len(best)+1)
			lanes = append(lanes, p.ID)
			for _, id := range best {
				lanes = append(lanes, id)
			}
			p.LaneIDs = lanes
		}
	}
}

// LaneLineStrings exports each lane run as a LineString, for the audit
// database and debug tooling. Only available on loader-built splines.
func (s *Spline) LaneLineStrings() ([]geom.LineString, error) {
	out := make([]geom.LineString, 0, len(s.laneRuns))
	for _, run := range s.laneRuns {
		coords := make([]float64, 0, len(run)*3)
		for _, id := range run {
			p := s.points[id].Position
			coords = append(coords, p.X, p.Z, p.Y)
		}
		seq := geom.NewSequence(coords, geom.DimXYZ)
		ls, err := geom.NewLineString(seq)
		if err != nil {
			return nil, fmt.Errorf("building lane linestring: %w", err)
		}
		out = append(out, ls)
	}
	return out, nil
}
