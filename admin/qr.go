package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/bizbot-il/bizbot/log"
)

// botLink is the deep link customers scan to open the bot.
func (p *Panel) botLink() string {
	return "https://t.me/" + p.cfg.Chat.BotUsername
}

func (p *Panel) handleQRPage(c *gin.Context) {
	link := p.botLink()

	content := cardStart("קוד QR לשיתוף", "qr-code") + fmt.Sprintf(`
<div class="text-center">
    <img src="/qr-code/preview" alt="QR" class="border rounded p-2 mb-3" style="max-width: 280px;">
    <p><a href="%s" target="_blank">%s</a></p>
    <p class="text-muted">הדפיסו את הקוד ותלו אותו בעסק. סריקה פותחת שיחה עם הבוט.</p>
    <a href="/qr-code/download" class="btn btn-primary"><i class="bi bi-download me-1"></i>הורדה להדפסה</a>
    <a href="/qr-code/download?scale=20" class="btn btn-outline-secondary">הורדה בגודל מלא</a>
</div>`, esc(link), esc(link)) + cardEnd()

	p.renderPage(c, "קוד QR", "/qr-code", content)
}

// qrPNG renders the deep link as a PNG. scale is the pixels-per-module
// factor, clamped to a sane print range.
func (p *Panel) qrPNG(scale int) ([]byte, error) {
	if scale < 1 {
		scale = 1
	}
	if scale > 50 {
		scale = 50
	}
	// 29 modules plus borders at scale px each lands near the
	// requested print size.
	return qrcode.Encode(p.botLink(), qrcode.High, scale*33)
}

func (p *Panel) handleQRPreview(c *gin.Context) {
	png, err := p.qrPNG(8)
	if err != nil {
		log.Log.Errorf("failed to render qr preview: %v", err)
		c.String(http.StatusInternalServerError, "qr generation failed")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (p *Panel) handleQRDownload(c *gin.Context) {
	scale, err := strconv.Atoi(c.DefaultQuery("scale", "10"))
	if err != nil {
		scale = 10
	}

	png, err := p.qrPNG(scale)
	if err != nil {
		log.Log.Errorf("failed to render qr download: %v", err)
		c.String(http.StatusInternalServerError, "qr generation failed")
		return
	}

	filename := fmt.Sprintf("qr_%s.png", p.cfg.Chat.BotUsername)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "image/png", png)
}
