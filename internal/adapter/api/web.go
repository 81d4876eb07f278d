package api

import (
	"path/filepath"
)

// MountWeb serves the two pages of the application: the auth page and
// the protected home. Route protection happens client side off the
// stored token; every data road goes through the authenticated API.
func (s *Server) MountWeb() {
	if s.webDir == "" {
		return
	}

	s.handler.File("/", filepath.Join(s.webDir, "index.html"))
	s.handler.File("/auth", filepath.Join(s.webDir, "auth.html"))
	s.handler.Static("/assets", filepath.Join(s.webDir, "assets"))
}
