package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/http"

	"github.com/S1riyS/memfs9p/server/internal/models"
)

func EncodeQid(buf *bytes.Buffer, qid models.Qid) error {
	if err := buf.WriteByte(qid.Type); err != nil {
		return fmt.Errorf("failed to encode qid.type: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, qid.Version); err != nil {
		return fmt.Errorf("failed to encode qid.version: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, qid.Path); err != nil {
		return fmt.Errorf("failed to encode qid.path: %w", err)
	}
	return nil
}

func EncodeNodeMeta(meta *models.NodeMeta) ([]byte, error) {
	buf := new(bytes.Buffer)

	// qid (13 bytes)
	if err := EncodeQid(buf, meta.Qid); err != nil {
		return nil, err
	}

	// ino (int64, 8 bytes)
	if err := binary.Write(buf, binary.LittleEndian, meta.Ino); err != nil {
		return nil, fmt.Errorf("failed to encode ino: %w", err)
	}

	// parent_ino (int64, 8 bytes)
	if err := binary.Write(buf, binary.LittleEndian, meta.ParentIno); err != nil {
		return nil, fmt.Errorf("failed to encode parent_ino: %w", err)
	}

	// type (int16, 2 bytes)
	if err := binary.Write(buf, binary.LittleEndian, int16(meta.Type)); err != nil {
		return nil, fmt.Errorf("failed to encode type: %w", err)
	}

	// mode (uint32, 4 bytes)
	if err := binary.Write(buf, binary.LittleEndian, meta.Mode); err != nil {
		return nil, fmt.Errorf("failed to encode mode: %w", err)
	}

	// size (int64, 8 bytes)
	if err := binary.Write(buf, binary.LittleEndian, meta.Size); err != nil {
		return nil, fmt.Errorf("failed to encode size: %w", err)
	}

	// uid, gid (uint32, 4 bytes each)
	if err := binary.Write(buf, binary.LittleEndian, meta.UID); err != nil {
		return nil, fmt.Errorf("failed to encode uid: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, meta.GID); err != nil {
		return nil, fmt.Errorf("failed to encode gid: %w", err)
	}

	return buf.Bytes(), nil
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

	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(body)
	return err
}

func WriteUint32Response(w http.ResponseWriter, code int64, value uint32) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, value); err != nil {
		return err
	}
	return WriteResponse(w, code, buf.Bytes())
}

func WriteInt64Response(w http.ResponseWriter, code int64, value int64) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, value); err != nil {
		return err
	}
	return WriteResponse(w, code, buf.Bytes())
}
