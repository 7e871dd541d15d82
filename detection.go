package aiv_bot

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.viam.com/rdk/logging"
)

// MaxDetectionBytes bounds how much of a detection file is read per poll.
const MaxDetectionBytes = 64 * 1024

// Channel identifies which camera produced a detection.
type Channel int

const (
	Front Channel = iota
	Back
)

func (c Channel) String() string {
	if c == Back {
		return "back"
	}
	return "front"
}

// Sign is the drive mirroring applied for the channel: +1 front, -1 back.
func (c Channel) Sign() int {
	if c == Back {
		return -1
	}
	return 1
}

// Detection is one sighting of a target reported by the vision process.
type Detection struct {
	Heading  float64 // degrees, positive is to the right of the camera
	TargetID int
	Distance float64
}

// Detections holds the candidates of both channels for one poll.
type Detections struct {
	Front []Detection
	Back  []Detection
}

// Empty reports whether neither channel has a candidate.
func (d Detections) Empty() bool {
	return len(d.Front) == 0 && len(d.Back) == 0
}

// DetectionReader polls the front and back detection files.
type DetectionReader struct {
	frontPath string
	backPath  string
	logger    logging.Logger
}

// NewDetectionReader creates a reader for the two detection files.
func NewDetectionReader(frontPath, backPath string, logger logging.Logger) *DetectionReader {
	return &DetectionReader{
		frontPath: frontPath,
		backPath:  backPath,
		logger:    logger,
	}
}

// Read re-reads both files. A missing or unreadable file yields no detections
// for that channel.
func (r *DetectionReader) Read(ctx context.Context) Detections {
	return Detections{
		Front: r.readChannel(ctx, Front, r.frontPath),
		Back:  r.readChannel(ctx, Back, r.backPath),
	}
}

func (r *DetectionReader) readChannel(ctx context.Context, ch Channel, path string) []Detection {
	if ctx.Err() != nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		// the vision process may not have written anything yet
		r.logger.Debugf("no %s detections: %v", ch, err)
		return nil
	}
	defer f.Close()

	detections, skipped := ParseDetections(io.LimitReader(f, MaxDetectionBytes))
	if skipped > 0 {
		r.logger.Debugf("skipped %d malformed %s detection lines", skipped, ch)
	}
	return detections
}

// ParseDetections parses whitespace separated detection lines, in order.
// Lines are either "heading distance" or "heading target_id distance".
// It returns the well-formed detections and the number of skipped lines.
func ParseDetections(r io.Reader) ([]Detection, int) {
	var (
		detections []Detection
		skipped    int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		d, ok := parseDetectionFields(fields)
		if !ok {
			skipped++
			continue
		}
		detections = append(detections, d)
	}
	// a truncated trailing line is dropped like any other malformed line
	if scanner.Err() != nil {
		skipped++
	}
	return detections, skipped
}

func parseDetectionFields(fields []string) (Detection, bool) {
	if len(fields) != 2 && len(fields) != 3 {
		return Detection{}, false
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Detection{}, false
		}
		values[i] = v
	}
	if len(values) == 2 {
		return Detection{Heading: values[0], Distance: values[1]}, true
	}
	if values[1] != math.Trunc(values[1]) {
		return Detection{}, false
	}
	return Detection{Heading: values[0], TargetID: int(values[1]), Distance: values[2]}, true
}
