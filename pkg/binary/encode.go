package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"

	"github.com/S1riyS/vfsd/internal/models"
)

const (
	nameField = models.NameMax + 1 // name (char[NAME_MAX+1], NUL padded)

	// NodeInfoSize is the encoded length of one metadata record.
	NodeInfoSize = 7*4 + nameField + 4
)

var ErrShortRecord = errors.New("binary: short metadata record")

func EncodeNodeInfo(info *models.NodeInfo) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, NodeInfoSize))
	if err := writeNodeInfo(buf, info); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeNodeInfos packs records back to back, the layout of a KIDS reply.
func EncodeNodeInfos(infos []models.NodeInfo) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, NodeInfoSize*len(infos)))
	for i := range infos {
		if err := writeNodeInfo(buf, &infos[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func writeNodeInfo(buf *bytes.Buffer, info *models.NodeInfo) error {
	if len(info.Name) > models.NameMax {
		return fmt.Errorf("failed to encode name: %d bytes exceeds %d", len(info.Name), models.NameMax)
	}

	head := []any{
		info.ID,
		info.Size,
		info.Node,
		uint32(info.Type),
		info.Owner,
		info.DevIndex,
		info.DevServPID,
	}
	for _, v := range head {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to encode header: %w", err)
		}
	}

	name := make([]byte, nameField)
	copy(name, info.Name)
	buf.Write(name)

	if err := binary.Write(buf, binary.LittleEndian, info.Data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return nil
}

func DecodeNodeInfo(data []byte) (*models.NodeInfo, error) {
	if len(data) < NodeInfoSize {
		return nil, ErrShortRecord
	}
	le := binary.LittleEndian
	info := &models.NodeInfo{
		ID:         le.Uint32(data[0:]),
		Size:       le.Uint32(data[4:]),
		Node:       le.Uint32(data[8:]),
		Type:       models.NodeType(le.Uint32(data[12:])),
		Owner:      int32(le.Uint32(data[16:])),
		DevIndex:   int32(le.Uint32(data[20:])),
		DevServPID: int32(le.Uint32(data[24:])),
	}
	name := data[28 : 28+nameField]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	info.Name = string(name)
	info.Data = le.Uint32(data[28+nameField:])
	return info, nil
}

func DecodeNodeInfos(data []byte) ([]models.NodeInfo, error) {
	if len(data)%NodeInfoSize != 0 {
		return nil, ErrShortRecord
	}
	out := make([]models.NodeInfo, 0, len(data)/NodeInfoSize)
	for off := 0; off < len(data); off += NodeInfoSize {
		info, err := DecodeNodeInfo(data[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func EncodeHandle(h uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, h)
}

func DecodeHandle(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint32(data), nil
}

func WriteResponse(w http.ResponseWriter, code int64, data []byte) error {
	response := new(bytes.Buffer)

	// Return code (int64, 8 bytes)
	if err := binary.Write(response, binary.LittleEndian, code); err != nil {
		return fmt.Errorf("failed to write response code: %w", err)
	}

	if data != nil {
		if _, err := response.Write(data); err != nil {
			return fmt.Errorf("failed to write response data: %w", err)
		}
	}

	body := response.Bytes()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(body)
	return err
}

// ReadResponse splits a body produced by WriteResponse.
func ReadResponse(body []byte) (int64, []byte, error) {
	if len(body) < 8 {
		return 0, nil, ErrShortPayload
	}
	return int64(binary.LittleEndian.Uint64(body)), body[8:], nil
}
