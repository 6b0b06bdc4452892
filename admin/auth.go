package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/log"
)

const (
	sessionCookie = "bizbot_session"
	flashCookie   = "bizbot_flash"
	sessionTTL    = 30 * 24 * time.Hour
)

// sessionCodec signs and verifies session cookie values. The value is
// "admin:<expiry-unix>:<hmac>" so a stolen secret is required to forge
// a session and expiry cannot be extended client-side.
type sessionCodec struct {
	secret []byte
}

func newSessionCodec(secret string) *sessionCodec {
	return &sessionCodec{secret: []byte(secret)}
}

func (sc *sessionCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, sc.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// issue mints a session value expiring after sessionTTL.
func (sc *sessionCodec) issue(now time.Time) string {
	payload := fmt.Sprintf("admin:%d", now.Add(sessionTTL).Unix())
	return payload + ":" + sc.sign(payload)
}

// verify checks the signature and the embedded expiry.
func (sc *sessionCodec) verify(value string, now time.Time) bool {
	i := strings.LastIndex(value, ":")
	if i < 0 {
		return false
	}
	payload, sig := value[:i], value[i+1:]
	if !hmac.Equal([]byte(sig), []byte(sc.sign(payload))) {
		return false
	}
	parts := strings.Split(payload, ":")
	if len(parts) != 2 || parts[0] != "admin" {
		return false
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	return now.Unix() < expiry
}

// csrfToken derives the form token from the session value, so it is
// stable for the session's lifetime and useless without the cookie.
func (sc *sessionCodec) csrfToken(session string) string {
	return sc.sign("csrf:" + session)
}

// checkCredentials compares the submitted credentials in constant time.
// The password check always runs even when the username is wrong, so
// response timing does not reveal which field failed.
func (p *Panel) checkCredentials(username, password string) bool {
	admin := p.cfg.Admin

	userOK := hmac.Equal([]byte(username), []byte(admin.Username))

	var passOK bool
	if admin.PasswordHash != "" {
		sum := sha256.Sum256([]byte(password))
		passOK = hmac.Equal([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(admin.PasswordHash)))
	} else {
		passOK = hmac.Equal([]byte(password), []byte(admin.Password))
	}

	return userOK && passOK
}

// requireLogin redirects unauthenticated requests to the login page and
// rejects POSTs carrying a missing or stale CSRF token.
func (p *Panel) requireLogin(c *gin.Context) {
	session, err := c.Cookie(sessionCookie)
	if err != nil || !p.sessions.verify(session, time.Now()) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.Path))
		c.Abort()
		return
	}

	if c.Request.Method == http.MethodPost {
		token := c.PostForm("csrf_token")
		if !hmac.Equal([]byte(token), []byte(p.sessions.csrfToken(session))) {
			p.setFlash(c, "פג תוקף הטופס. נסו שוב.", "warning")
			c.Redirect(http.StatusFound, c.Request.URL.Path)
			c.Abort()
			return
		}
	}

	c.Set("csrf_token", p.sessions.csrfToken(session))
	c.Next()
}

// csrfField renders the hidden CSRF input for a form.
func csrfField(c *gin.Context) string {
	token, _ := c.Get("csrf_token")
	s, _ := token.(string)
	return fmt.Sprintf(`<input type="hidden" name="csrf_token" value="%s">`, s)
}

func (p *Panel) handleLoginPage(c *gin.Context) {
	p.renderLogin(c)
}

func (p *Panel) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	if !p.checkCredentials(username, password) {
		log.Log.Warnf("admin login failed for user %q", username)
		p.setFlash(c, "פרטי התחברות שגויים.", "danger")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	session := p.sessions.issue(time.Now())
	c.SetCookie(sessionCookie, session, int(sessionTTL.Seconds()), "/", "", false, true)
	p.setFlash(c, "ברוכים השבים!", "success")

	next := c.Query("next")
	if next == "" || !strings.HasPrefix(next, "/") {
		next = "/"
	}
	c.Redirect(http.StatusFound, next)
}

func (p *Panel) handleLogout(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	p.setFlash(c, "התנתקת בהצלחה.", "info")
	c.Redirect(http.StatusFound, "/login")
}

// setFlash stores a one-shot message in a cookie; the next rendered
// page consumes it.
func (p *Panel) setFlash(c *gin.Context, message, level string) {
	c.SetCookie(flashCookie, url.QueryEscape(level+"|"+message), 60, "/", "", false, false)
}

// takeFlash pops the pending flash message, if any.
func (p *Panel) takeFlash(c *gin.Context) (message, level string) {
	raw, err := c.Cookie(flashCookie)
	if err != nil {
		return "", ""
	}
	c.SetCookie(flashCookie, "", -1, "/", "", false, false)
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return "", ""
	}
	level, message, found := strings.Cut(decoded, "|")
	if !found {
		return "", ""
	}
	return message, level
}
