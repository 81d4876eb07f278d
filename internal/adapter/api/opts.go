package api

import (
	"log/slog"
	"net"
	"strconv"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	authapp "github.com/trackfit/trackfit/internal/app/auth"
	"github.com/trackfit/trackfit/internal/app/session"
)

type Option func(*Server)

func Addr(host string, port int) Option {
	return func(s *Server) {
		s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func Logger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func MetricBackend(b backend.MetricBackend) Option {
	return func(s *Server) {
		s.metricBackend = b
	}
}

func AuthService(service *authapp.Service) Option {
	return func(s *Server) {
		s.authService = service
	}
}

func Sessions(m *session.Manager) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

func WebDir(dir string) Option {
	return func(s *Server) {
		s.webDir = dir
	}
}
