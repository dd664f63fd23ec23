package occupancy

import "github.com/kats-org/roverd/pose"

// Projector converts between map-frame millimeter poses and planning-grid
// cells. It follows the external estimator's corner-origin convention:
// pixel (0, 0) is x_mm=0, y_mm=0, with no centering offset, matching
// mm2pix in the original REST layer.
type Projector struct {
	MapPixels  int
	MapMeters  float64
	CellPixels int
}

// NewProjector builds a Projector over the given map geometry and the
// coarse grid's tile size in source pixels.
func NewProjector(mapPixels int, mapMeters float64, cellPixels int) Projector {
	return Projector{MapPixels: mapPixels, MapMeters: mapMeters, CellPixels: cellPixels}
}

func (p Projector) scale() float64 {
	return float64(p.MapPixels) / (p.MapMeters * 1000)
}

// CellForPose converts a map-frame pose to the planning-grid cell it falls in.
func (p Projector) CellForPose(ps pose.Pose) Coord {
	scale := p.scale()
	px := ps.XMM * scale
	py := ps.YMM * scale
	return Coord{X: int(px) / p.CellPixels, Y: int(py) / p.CellPixels}
}

// CellCenterMM is the inverse of CellForPose: the map-frame millimeter
// coordinates of a grid cell's pixel centre.
func (p Projector) CellCenterMM(c Coord) (float64, float64) {
	scale := p.scale()
	pxCenter := float64(c.X*p.CellPixels + p.CellPixels/2)
	pyCenter := float64(c.Y*p.CellPixels + p.CellPixels/2)
	return pxCenter / scale, pyCenter / scale
}

// PixelForPose converts a map-frame pose to raw occupancy-map pixel
// coordinates, the unit /robot/target and /ws/map's position field are
// expressed in over the wire.
func (p Projector) PixelForPose(ps pose.Pose) (int, int) {
	scale := p.scale()
	return int(ps.XMM * scale), int(ps.YMM * scale)
}

// PoseForPixel is the inverse of PixelForPose.
func (p Projector) PoseForPixel(xPixel, yPixel int) (xMM, yMM float64) {
	scale := p.scale()
	return float64(xPixel) / scale, float64(yPixel) / scale
}

// CellForPixel converts a raw occupancy-map pixel coordinate to its
// planning-grid cell.
func (p Projector) CellForPixel(xPixel, yPixel int) Coord {
	return Coord{X: xPixel / p.CellPixels, Y: yPixel / p.CellPixels}
}
