/*
 *
 * webdriver-launcher - configures and launches WebDriver sessions
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/grafana/webdriver-launcher/api"
	"github.com/grafana/webdriver-launcher/storage"
)

// Screenshotter captures the current viewport of a WebDriver session.
type Screenshotter struct {
	persister storage.FilePersister
}

// NewScreenshotter returns a Screenshotter writing files with persister.
func NewScreenshotter(persister storage.FilePersister) *Screenshotter {
	return &Screenshotter{persister: persister}
}

// Screenshot takes a PNG screenshot and, if path is not empty, persists it.
func (s *Screenshotter) Screenshot(ctx context.Context, wd api.WebDriver, path string) ([]byte, error) {
	buf, err := wd.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("taking screenshot: %w", err)
	}
	if path == "" {
		return buf, nil
	}
	if ext := filepath.Ext(path); ext != ".png" {
		return nil, fmt.Errorf("unsupported screenshot file extension %q, only .png is supported", ext)
	}
	if err := s.persister.Persist(ctx, path, bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("persisting screenshot: %w", err)
	}

	return buf, nil
}
