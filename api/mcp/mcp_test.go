package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/api/mcp"
	parleylogger "github.com/papercomputeco/parley/pkg/logger"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var server *mcp.Server

	BeforeEach(func() {
		var err error
		server, err = mcp.NewServer(mcp.Config{
			Pipeline: testutils.NewMockQuerier(),
			Logger:   parleylogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when pipeline is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: parleylogger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("pipeline is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Pipeline: testutils.NewMockQuerier()})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates an empty server when noop is set", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("creates a server with valid config", func() {
			Expect(server).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
