package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/dashrag/internal/models"
)

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("float32 blob length %d is not a multiple of %d", len(b), size)
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}

func uint32SliceToBytes(s []uint32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func bytesToUint32Slice(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("uint32 blob length %d is not a multiple of 4", len(b))
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}

func decodeSparse(indices, values []byte) (models.SparseVector, error) {
	idx, err := bytesToUint32Slice(indices)
	if err != nil {
		return models.SparseVector{}, err
	}
	vals, err := bytesToFloat32Slice(values)
	if err != nil {
		return models.SparseVector{}, err
	}
	v := models.SparseVector{Indices: idx, Values: vals}
	return v, v.Validate()
}

// stamp fills the identity fields a backend owns. It returns copies so the caller's
// points stay untouched until the write commits.
func stamp(points []*models.Point, now time.Time) []models.Point {
	out := make([]models.Point, len(points))
	for i, p := range points {
		out[i] = *p
		if out[i].PointID == "" {
			out[i].PointID = uuid.NewString()
		}
		out[i].CreatedAt = now
	}
	return out
}

// commit copies the assigned identity back onto the caller's points.
func commit(points []*models.Point, written []models.Point) {
	for i := range points {
		points[i].Seq = written[i].Seq
		points[i].PointID = written[i].PointID
		points[i].CreatedAt = written[i].CreatedAt
	}
}
