// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package settings

// Setting names stored in the options blob.
const (
	KeyAPIKey            = "sf_app_api_key"
	KeyRequestType       = "sf_request_type"
	KeyActivityLogs      = "sf_activity_logs"
	KeyErrorLogs         = "sf_error_logs"
	KeyExcludeRules      = "sf_exclude_rules"
	KeyPublicKey         = "public_key"
	KeyPublicKeyModified = "public_key_modified_date"
	KeySiteID            = "site_id"
	KeyOnboardingVersion = "sf_onboarding_version"
)
