package relay

import (
	"errors"
	"log/slog"

	"github.com/teslashibe/go-lens/pkg/pipeline"
	"github.com/teslashibe/go-lens/pkg/pose"
	"github.com/teslashibe/go-lens/pkg/protocol"
	"github.com/teslashibe/go-lens/pkg/textdetect"
)

// Display pushes pipeline output and keypoints to one device.
type Display struct {
	hub      *Hub
	deviceID string
	logger   *slog.Logger
}

// SetDetectedText implements pipeline.Display.
func (d *Display) SetDetectedText(text string) {
	msg, err := protocol.NewDetectedMessage(text)
	d.push(msg, err)
}

// SetTranslatedText implements pipeline.Display.
func (d *Display) SetTranslatedText(text string) {
	msg, err := protocol.NewTranslatedMessage(text)
	d.push(msg, err)
}

// SetDetections implements pipeline.DetectionsDisplay.
func (d *Display) SetDetections(results []textdetect.Result) {
	msg, err := protocol.NewPolygonsMessage(Polygons(results))
	d.push(msg, err)
}

// PublishKeypoints implements pose.Sink.
func (d *Display) PublishKeypoints(frameSeq uint64, keypoints []pose.Keypoint) {
	kps := make([][3]float64, len(keypoints))
	for i, k := range keypoints {
		kps[i] = [3]float64{k.X, k.Y, k.Z}
	}
	msg, err := protocol.NewKeypointsMessage(frameSeq, kps)
	d.push(msg, err)
}

func (d *Display) push(msg *protocol.Message, err error) {
	if err == nil {
		err = d.hub.SendTo(d.deviceID, msg)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrNotConnected):
		d.logger.Debug("display update dropped", "device", d.deviceID, "type", msg.Type)
	default:
		d.logger.Warn("display update failed", "device", d.deviceID, "error", err)
	}
}

// Polygons converts detection results to wire polygons.
func Polygons(results []textdetect.Result) []protocol.Polygon {
	out := make([]protocol.Polygon, 0, len(results))
	for _, r := range results {
		pts := make([][2]int, len(r.BoundingBox))
		for i, p := range r.BoundingBox {
			pts[i] = [2]int{p.X, p.Y}
		}
		out = append(out, protocol.Polygon{Text: r.Text, Points: pts})
	}
	return out
}

var (
	_ pipeline.Display           = (*Display)(nil)
	_ pipeline.DetectionsDisplay = (*Display)(nil)
	_ pose.Sink                  = (*Display)(nil)
)
