// Package mocks provides mock implementations of the audit collaborator ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	fetcher := mocks.NewMockPageFetcher(ctrl)
//	fetcher.EXPECT().FetchPage(gomock.Any(), "https://example.com/").Return(page, nil)
package mocks

// Generate mock for PageFetcher interface from internal/core package.
// This creates MockPageFetcher with methods for all PageFetcher interface methods:
// FetchPage
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=page_fetcher_mock.go github.com/target/mmk-site-audit/internal/core PageFetcher

// Generate mock for Check interface from internal/core package.
// This creates MockCheck with methods for all Check interface methods:
// Name, Category, Run
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=check_mock.go github.com/target/mmk-site-audit/internal/core Check

// Generate mock for PerformanceClient interface from internal/core package.
// This creates MockPerformanceClient with methods for all PerformanceClient interface methods:
// FetchInsights
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=performance_client_mock.go github.com/target/mmk-site-audit/internal/core PerformanceClient

// Generate mock for AuditRecorder interface from internal/core package.
// This creates MockAuditRecorder with methods for all AuditRecorder interface methods:
// RecordAudit
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_recorder_mock.go github.com/target/mmk-site-audit/internal/core AuditRecorder
