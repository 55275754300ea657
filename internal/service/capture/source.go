package capture

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"
)

// VideoSource reads frames from a camera feed or recorded file and returns
// them JPEG-encoded.
type VideoSource struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
	params  []int
}

// Open connects to feedURL, which may be an RTSP/HTTP URL or a local file.
func Open(feedURL string, quality int) (*VideoSource, error) {
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	capture, err := gocv.OpenVideoCapture(feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed %s: %w", feedURL, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("feed %s could not be opened", feedURL)
	}

	return &VideoSource{
		capture: capture,
		frame:   gocv.NewMat(),
		params:  []int{int(gocv.IMWriteJpegQuality), quality},
	}, nil
}

// Next returns the next frame, or io.EOF once the feed has no more frames.
func (s *VideoSource) Next() ([]byte, error) {
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, io.EOF
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.frame, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())
	return jpeg, nil
}

// Close releases the capture device and frame buffer.
func (s *VideoSource) Close() error {
	s.frame.Close()
	return s.capture.Close()
}
