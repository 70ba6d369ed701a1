package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cryptolocker/nftwallet/internal/actions"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/pkg/pinning"
)

// handleMintUpload multipart: image 文件 + name/description/attributes(JSON)。
// 先上传图片和 metadata，再用 metadata URI 铸造。
func (s *Server) handleMintUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pinning == nil {
		writeError(w, http.StatusServiceUnavailable, "pinning is not configured")
		return
	}
	if err := r.ParseMultipartForm(pinning.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	if header.Size > pinning.MaxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge, "image exceeds 25MB")
		return
	}

	meta := pinning.Metadata{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if meta.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if raw := r.FormValue("attributes"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta.Attributes); err != nil {
			writeError(w, http.StatusBadRequest, "attributes must be a JSON array")
			return
		}
	}

	// 不能铸造时不上传，避免产生无主的 pin
	session, d := s.current()
	if d == nil {
		writeError(w, statusFor(wallet.ErrNotConnected), wallet.ErrNotConnected.Error())
		return
	}
	if err := session.RequireSigner(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := session.RequireNetwork(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	tokenURI, imageURI, err := s.opts.Pinning.PinNFT(r.Context(), filepath.Base(header.Filename), file, meta)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		return d.Mint(ctx, actions.MintRequest{
			TokenURI:    tokenURI.URI,
			Name:        meta.Name,
			Description: meta.Description,
			Image:       imageURI.URI,
		})
	})
}
