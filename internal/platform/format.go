package platform

import (
	"fmt"
	"strings"
	"time"
)

const textTimeLayout = "2006-01-02 15:04:05"

// Text renders the group message for a notice. loc selects the display zone
// for the timestamp; nil means time.Local.
func (n Notice) Text(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	at := "Time: " + n.CreatedAt.In(loc).Format(textTimeLayout)

	switch n.Category {
	case FirstBlood:
		return fmt.Sprintf("🥇 队伍「%s」斩获了题目「%s」的第一滴血！\n%s", n.arg(0), n.arg(1), at)
	case SecondBlood:
		return fmt.Sprintf("🥈 队伍「%s」获得了题目「%s」的第二滴血！\n%s", n.arg(0), n.arg(1), at)
	case ThirdBlood:
		return fmt.Sprintf("🥉 队伍「%s」获得了题目「%s」的第三滴血！\n%s", n.arg(0), n.arg(1), at)
	case NewAnnouncement:
		return fmt.Sprintf("📢 新公告发布：\n标题: %s\n%s", strings.Join(n.Data, "\n"), at)
	case NewHint:
		return fmt.Sprintf("💡 题目「%s」发布了新提示，请前往平台查看\n%s", n.arg(0), at)
	default:
		return fmt.Sprintf("🔔 %s: %s\n%s", n.Category, strings.Join(n.Data, " "), at)
	}
}

func (n Notice) arg(i int) string {
	if i < len(n.Data) {
		return n.Data[i]
	}
	return "?"
}
