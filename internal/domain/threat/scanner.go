package threat

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/metrics"
)

// Scanner runs the signature battery and type-specific rules. It holds no
// mutable state; the only side effect of Scan is a log line when findings
// are produced. Audit emission is the caller's responsibility.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a scanner with the given logger.
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{logger: logger}
}

// Scan tests value against every signature detector, then applies the rules
// for the context's input kind. Detectors run independently; one input can
// trigger several categories at once. An empty value is always valid:
// presence checks belong to the caller, not the scanner.
func (s *Scanner) Scan(value string, ctx Context) Outcome {
	if value == "" {
		return newOutcome(nil)
	}
	defer func(start time.Time) {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}(time.Now())

	var findings []Finding

	if max := ctx.EffectiveMaxLength(); len(value) > max {
		findings = append(findings, NewFinding(CategoryExcessiveLength,
			fmt.Sprintf("input exceeds maximum length of %d", max)))
	}

	lower := strings.ToLower(value)
	for _, d := range detectors {
		findings = append(findings, runDetector(d, value, lower)...)
	}

	findings = append(findings, s.checkKind(value, ctx)...)

	outcome := newOutcome(findings)
	if !outcome.Valid {
		s.logger.Warn("threat findings detected",
			zap.String("kind", string(ctx.Kind)),
			zap.String("origin", string(ctx.Origin)),
			zap.String("field", ctx.Field),
			zap.String("remote_ip", ctx.RemoteIP),
			zap.Int("findings", len(findings)),
			zap.String("highest_severity", outcome.HighestSeverity().String()))
	}
	return outcome
}

// runDetector isolates detector faults: a panicking detector yields no
// finding instead of failing the request path.
func runDetector(d detector, value, lower string) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
		}
	}()
	return d.check(value, lower)
}

type detector struct {
	category Category
	check    func(value, lower string) []Finding
}

// tokenDetector matches any of the tokens case-insensitively.
func tokenDetector(category Category, description string, tokens ...string) detector {
	return detector{
		category: category,
		check: func(_, lower string) []Finding {
			for _, tok := range tokens {
				if strings.Contains(lower, tok) {
					return []Finding{NewFinding(category, description)}
				}
			}
			return nil
		},
	}
}

// regexDetector matches against a precompiled case-insensitive pattern.
func regexDetector(category Category, description string, re *regexp.Regexp) detector {
	return detector{
		category: category,
		check: func(value, _ string) []Finding {
			if re.MatchString(value) {
				return []Finding{NewFinding(category, description)}
			}
			return nil
		},
	}
}

var (
	sqlMetaRegex     = regexp.MustCompile(`(?i)('\s*(or|and)\s*'?\d|'\s*(or|and)\s*'[^']*'\s*=\s*'|;\s*--|union\s+select|insert\s+into|delete\s+from|drop\s+(table|database)|update\s+\w+\s+set|exec(ute)?\s*\(|xp_cmdshell|sleep\s*\(\s*\d|benchmark\s*\()`)
	xssRegex         = regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|on(error|load|click|mouseover|focus|blur)\s*=|<\s*iframe|<\s*svg[^>]*on|document\.(cookie|location)|eval\s*\(|expression\s*\()`)
	commandRegex     = regexp.MustCompile("(?i)([;|&`]\\s*(cat|ls|rm|wget|curl|nc|bash|sh|python|perl|powershell)\\b|\\$\\((cat|ls|rm|wget|curl|id|whoami)|\\bcmd\\.exe\\b|/etc/(passwd|shadow)|\\|\\s*nc\\s)")
	traversalRegex   = regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c|\.\.%5c|\.{4,}//)`)
	ldapRegex        = regexp.MustCompile(`(?i)(\*\)\(|\)\(\||\)\(&|\(\|\(|\(&\(|[^\\]\)\s*\(\s*cn=)`)
	xxeRegex         = regexp.MustCompile(`(?i)(<!doctype\s+[^>]*\[|<!entity\s|system\s+["']file:|system\s+["']https?:|public\s+["'][^"']*["']\s+["'])`)
	xmlBombRegex     = regexp.MustCompile(`(?i)(<!entity\s+\w+\s+["'][^"']*&\w+;|&\w+;\s*&\w+;\s*&\w+;\s*&\w+;)`)
	nosqlRegex       = regexp.MustCompile(`(?i)(\$(where|ne|gt|lt|gte|lte|regex|nin|exists|or|and)\b|\{\s*\$|mapreduce\s*:)`)
	templateRegex    = regexp.MustCompile(`(\{\{[^}]*\}\}|\$\{[^}]*\}|<%[^%]*%>|#\{[^}]*\})`)
	xpathRegex       = regexp.MustCompile(`(?i)('\s*\]\s*\||//\*\[|count\s*\(\s*//|text\s*\(\s*\)\s*=)`)
	encodedCRLFRegex = regexp.MustCompile(`(?i)(%0d%0a|%0d|%0a)`)
	redirectParamRegex = regexp.MustCompile(`(?i)(redirect|return_?url|next|goto|dest)=https?(%3a|:)`)
	exfilRegex       = regexp.MustCompile(`(?i)(into\s+(out|dump)file|load_file\s*\(|data:text/html|;base64,[a-z0-9+/=]{64,})`)
	credentialRegex  = regexp.MustCompile(`(?i)(-----begin\s+(rsa|ec|openssh)?\s*private\s+key|aws_secret_access_key|authorization:\s*(bearer|basic)\s+\S+|password\s*=\s*\S{4,})`)
	nestedQuantRegex = regexp.MustCompile(`\([^)]*[+*]\)[+*]`)
)

// maxRepeatedRun is the longest run of one rune accepted before an input
// counts as a resource exhaustion attempt.
const maxRepeatedRun = 511

// hasRepeatedRun reports whether value contains a run of more than limit
// consecutive identical runes. RE2 has no backreferences, so this check
// cannot be a regex.
func hasRepeatedRun(value string, limit int) bool {
	var prev rune
	run := 0
	for _, r := range value {
		if run > 0 && r == prev {
			run++
			if run > limit {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

// detectors is the fixed battery run against every input, independent of
// semantic kind and without short-circuiting.
var detectors = []detector{
	regexDetector(CategorySQLInjection, "SQL meta-characters or keywords detected", sqlMetaRegex),
	regexDetector(CategoryNoSQLInjection, "NoSQL operator tokens detected", nosqlRegex),
	regexDetector(CategoryLDAPInjection, "LDAP filter meta-characters detected", ldapRegex),
	regexDetector(CategoryCommandInjection, "shell meta-characters with known binaries detected", commandRegex),
	regexDetector(CategoryTemplateInjection, "template expression delimiters detected", templateRegex),
	regexDetector(CategoryXPathInjection, "XPath expression tokens detected", xpathRegex),
	regexDetector(CategoryCrossSiteScripting, "script or event-handler injection tokens detected", xssRegex),
	tokenDetector(CategoryHTMLInjection, "HTML tag injection detected",
		"<img", "<object", "<embed", "<form", "<meta", "<link", "<base"),
	tokenDetector(CategoryCSSInjection, "CSS injection tokens detected",
		"expression(", "-moz-binding", "@import"),
	regexDetector(CategoryXMLExternalEntity, "XML external entity markers detected", xxeRegex),
	regexDetector(CategoryXMLBomb, "XML entity expansion pattern detected", xmlBombRegex),
	regexDetector(CategoryHeaderInjection, "encoded CRLF header injection detected", encodedCRLFRegex),
	regexDetector(CategoryPathTraversal, "directory traversal sequence detected", traversalRegex),
	tokenDetector(CategoryNullByte, "null byte detected", "\x00", "%00"),
	regexDetector(CategoryDataExfiltration, "data exfiltration indicator detected", exfilRegex),
	regexDetector(CategoryCredentialExposure, "embedded credential material detected", credentialRegex),
	{
		category: CategoryControlCharacters,
		check: func(value, _ string) []Finding {
			for _, r := range value {
				if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
					return []Finding{NewFinding(CategoryControlCharacters,
						"non-printable control characters detected")}
				}
			}
			return nil
		},
	},
	{
		category: CategoryDenialOfService,
		check: func(value, _ string) []Finding {
			if hasRepeatedRun(value, maxRepeatedRun) || nestedQuantRegex.MatchString(value) {
				return []Finding{NewFinding(CategoryDenialOfService,
					"resource exhaustion pattern detected")}
			}
			return nil
		},
	},
}

// checkKind applies the type-specific second pass. Format failures are
// low-severity findings; they never abort the battery results already
// collected.
func (s *Scanner) checkKind(value string, ctx Context) []Finding {
	switch ctx.Kind {
	case KindEmail:
		return checkEmail(value)
	case KindURL:
		return checkURL(value)
	case KindFilename:
		return checkFilename(value)
	case KindUsername:
		return checkUsername(value)
	case KindPassword:
		return checkPassword(value, ctx.Strict)
	case KindBackupPath:
		return checkBackupPath(value)
	case KindBucketName:
		return checkBucketName(value)
	case KindHostname:
		return checkHostname(value)
	default:
		return nil
	}
}

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)
	bucketRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	ipLikeRegex   = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
)

// dangerousExtensions are rejected for uploaded or configured filenames.
var dangerousExtensions = []string{
	".exe", ".dll", ".bat", ".cmd", ".com", ".scr", ".pif",
	".sh", ".ps1", ".vbs", ".jar", ".msi", ".hta", ".cpl",
}

func checkEmail(value string) []Finding {
	addr := strings.TrimSpace(strings.ToLower(value))
	if _, err := mail.ParseAddress(addr); err != nil {
		return []Finding{NewFinding(CategoryInvalidFormat, "invalid email address format")}
	}
	return nil
}

func checkURL(value string) []Finding {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return []Finding{NewFinding(CategoryInvalidFormat, "unparseable URL")}
	}

	var findings []Finding
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		findings = append(findings, NewFinding(CategoryInvalidFormat, "URL missing scheme"))
	default:
		findings = append(findings, NewFinding(CategoryInsecureURLScheme,
			fmt.Sprintf("disallowed URL scheme %q", u.Scheme)))
	}
	if u.User != nil {
		findings = append(findings, NewFinding(CategoryCredentialExposure,
			"URL embeds userinfo credentials"))
	}
	if u.Host == "" && u.Scheme != "" {
		findings = append(findings, NewFinding(CategoryInvalidFormat, "URL missing host"))
	}
	if redirectParamRegex.MatchString(u.RawQuery) {
		findings = append(findings, NewFinding(CategoryOpenRedirect,
			"URL carries an absolute redirect target"))
	}
	if strings.ContainsAny(value, "\r\n") {
		findings = append(findings, NewFinding(CategoryHeaderInjection,
			"URL contains raw line breaks"))
	}
	return findings
}

func checkFilename(value string) []Finding {
	var findings []Finding
	if strings.ContainsAny(value, "/\\") {
		findings = append(findings, NewFinding(CategoryPathTraversal,
			"filename contains path separators"))
	}
	lower := strings.ToLower(value)
	for _, ext := range dangerousExtensions {
		if strings.HasSuffix(lower, ext) {
			findings = append(findings, NewFinding(CategoryDangerousFileExtension,
				fmt.Sprintf("dangerous file extension %q", ext)))
			break
		}
	}
	return findings
}

func checkUsername(value string) []Finding {
	if !usernameRegex.MatchString(value) {
		return []Finding{NewFinding(CategoryInvalidFormat,
			"username must be 3-64 characters of letters, digits, dot, underscore, hyphen")}
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "123456": {}, "12345678": {},
	"qwerty": {}, "letmein": {}, "admin": {}, "welcome": {},
	"backup": {}, "changeme": {},
}

func checkPassword(value string, strict bool) []Finding {
	minLen := 8
	if strict {
		minLen = 12
	}

	var findings []Finding
	if len(value) < minLen {
		findings = append(findings, NewFinding(CategoryWeakPassword,
			fmt.Sprintf("password shorter than %d characters", minLen)))
	}
	if _, ok := commonPasswords[strings.ToLower(value)]; ok {
		findings = append(findings, NewFinding(CategoryWeakPassword,
			"password appears in common password list"))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		findings = append(findings, NewFinding(CategoryWeakPassword,
			"password must mix upper case, lower case and digits"))
	}
	return findings
}

func checkBackupPath(value string) []Finding {
	var findings []Finding
	if strings.Contains(value, "..") {
		findings = append(findings, NewFinding(CategoryArchivePathEscape,
			"backup path escapes its root via parent references"))
	}
	if !strings.HasPrefix(value, "/") && !winAbsPath(value) {
		findings = append(findings, NewFinding(CategoryInvalidFormat,
			"backup path must be absolute"))
	}
	return findings
}

func winAbsPath(value string) bool {
	return len(value) >= 3 && value[1] == ':' && (value[2] == '\\' || value[2] == '/')
}

func checkBucketName(value string) []Finding {
	if len(value) < 3 || len(value) > 63 || !bucketRegex.MatchString(value) ||
		strings.Contains(value, "..") || ipLikeRegex.MatchString(value) {
		return []Finding{NewFinding(CategoryInvalidFormat,
			"bucket name must be 3-63 lowercase letters, digits, dots or hyphens")}
	}
	return nil
}

func checkHostname(value string) []Finding {
	if ip := net.ParseIP(value); ip != nil {
		return nil
	}
	if len(value) > 253 || !hostnameRegex.MatchString(value) {
		return []Finding{NewFinding(CategoryInvalidFormat, "invalid hostname")}
	}
	return nil
}
