package telegram

import (
	"fmt"
	"strings"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/service"
)

const (
	menuMain     = "main"
	menuTiers    = "tiers"
	menuDetails  = "details"
	menuReferral = "referral"
	menuRefLink  = "ref_link"
	menuPoints   = "points"
	menuRefInfo  = "ref_info"
	menuRedeem   = "redeem"
	menuSupport  = "support"
	menuChannels = "channels"
	menuEnd      = "end"
)

func dataButton(text, data string) service.Button {
	return service.Button{Text: text, Data: data}
}

func backButton(data string) service.Button {
	return dataButton("🔙 Back", data)
}

func welcomeMessage(name string) service.Message {
	return service.Message{
		Text: fmt.Sprintf("✨ Welcome, %s!\n\nTap Next to open the bot options 👇", name),
		Buttons: [][]service.Button{
			{dataButton("Next ▶️", service.MenuData(menuMain))},
			{dataButton("📺 Our public channels", service.MenuData(menuChannels))},
		},
	}
}

func mainMenu(name string) service.Message {
	return service.Message{
		Text: fmt.Sprintf("Hello %s ✨\n\nThis bot sells access to our private channels and groups 🔥\n\nPlease choose:\n\n"+
			"1️⃣ Subscribe 🔥\n2️⃣ Referrals and rewards 🎁\n3️⃣ Contact us ❤️\n4️⃣ End the session", name),
		Buttons: [][]service.Button{
			{dataButton("🔥 Subscriptions", service.MenuData(menuTiers))},
			{dataButton("🎁 Referrals", service.MenuData(menuReferral))},
			{dataButton("💬 Support", service.MenuData(menuSupport))},
			{dataButton("👋 End", service.MenuData(menuEnd))},
		},
	}
}

func tiersMenu(c *catalog.Catalog) service.Message {
	rows := make([][]service.Button, 0, len(c.Tiers)+1)
	for _, t := range c.Tiers {
		rows = append(rows, []service.Button{dataButton(t.Label, service.TierData(t.Key))})
	}
	rows = append(rows, []service.Button{backButton(service.MenuData(menuMain))})
	return service.Message{
		Text:     "💯 *Choose a subscription tier*\n\n_Details of each tier are inside._",
		Markdown: true,
		Buttons:  rows,
	}
}

func priceLine(t catalog.Tier) string {
	switch {
	case t.PriceUSD != "" && t.PriceLocal != "":
		return fmt.Sprintf("%s$ / %s", t.PriceUSD, t.PriceLocal)
	case t.PriceUSD != "":
		return t.PriceUSD + "$"
	default:
		return t.PriceLocal
	}
}

func methodsMenu(c *catalog.Catalog, t catalog.Tier) service.Message {
	var rows [][]service.Button
	var row []service.Button
	for _, m := range c.Methods {
		label := m.Label
		if label == "" {
			label = m.Key
		}
		row = append(row, dataButton(label, service.MethodData(m.Key)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		[]service.Button{dataButton("ℹ️ Details", service.MenuData(menuDetails))},
		[]service.Button{backButton(service.MenuData(menuTiers))},
	)
	text := fmt.Sprintf("💎 Tier: %s\n", t.Label)
	if price := priceLine(t); price != "" {
		text += fmt.Sprintf("💰 Price: %s\n", price)
	}
	text += "\nChoose a payment method 👇"
	return service.Message{Text: text, Buttons: rows}
}

func detailsMessage(c *catalog.Catalog, tierKey string) service.Message {
	t, ok := c.Tier(tierKey)
	back := [][]service.Button{{backButton(service.TierData(tierKey))}}
	if !ok || strings.TrimSpace(t.Details) == "" {
		return service.Message{Text: "No details available.", Buttons: back}
	}
	return service.Message{Text: t.Details, Markdown: true, Buttons: back}
}

func instructionsMessage(text, tierKey string) service.Message {
	return service.Message{
		Text:     text,
		Markdown: true,
		Buttons:  [][]service.Button{{dataButton("🔙 Back to payment methods", service.TierData(tierKey))}},
	}
}

func referralMenu(points int) service.Message {
	return service.Message{
		Text: fmt.Sprintf("🎁 Referrals and rewards\n\nInvite friends and earn %d points for everyone who joins through your link! 💰", points),
		Buttons: [][]service.Button{
			{dataButton("🔗 My link", service.MenuData(menuRefLink)), dataButton("✨ My points", service.MenuData(menuPoints))},
			{dataButton("🎁 Redeem", service.MenuData(menuRedeem)), dataButton("📜 How it works", service.MenuData(menuRefInfo))},
			{backButton(service.MenuData(menuMain))},
		},
	}
}

func referralLinkMessage(botUsername string, userID int64, points int) service.Message {
	link := fmt.Sprintf("https://t.me/%s?start=%s", botUsername, service.ReferralCode(userID))
	return service.Message{
		Text: fmt.Sprintf("🔗 Your referral link:\n\n%s\n\nShare it with friends 👏\nYou earn %d points for everyone who joins through it 💎", link, points),
	}
}

func pointsMessage(points, referrals int) service.Message {
	return service.Message{Text: fmt.Sprintf("✨ Your balance: %d points 💰\n👥 People you invited: %d", points, referrals)}
}

func referralInfoMessage(points int) service.Message {
	return service.Message{Text: fmt.Sprintf(
		"📜 How referrals work\n\n"+
			"• You earn %d points for everyone who joins through your link.\n"+
			"• The new user also receives %d points as a gift.\n"+
			"• Points can be exchanged for subscriptions; contact support to redeem.\n\n"+
			"Share your link and start earning! 🚀", points, points)}
}

func redeemMessage() service.Message {
	return service.Message{Text: "🎁 Redeeming points\n\nContact support to exchange your points for a reward 💬"}
}

func supportMenu(c *catalog.Catalog) service.Message {
	rows := make([][]service.Button, 0, len(c.Support)+1)
	for _, l := range c.Support {
		rows = append(rows, []service.Button{{Text: "💬 " + l.Label, URL: l.URL}})
	}
	rows = append(rows, []service.Button{backButton(service.MenuData(menuMain))})
	return service.Message{
		Text:    "📞 Contact support\n\nTap one of the buttons below; we will answer shortly ❤️",
		Buttons: rows,
	}
}

func channelsMenu(c *catalog.Catalog) service.Message {
	if len(c.Channels) == 0 {
		return service.Message{Text: "No public channels yet."}
	}
	rows := make([][]service.Button, 0, len(c.Channels))
	for _, l := range c.Channels {
		rows = append(rows, []service.Button{{Text: l.Label, URL: l.URL}})
	}
	return service.Message{Text: "📺 Our public channels:", Buttons: rows}
}

func endMessage() service.Message {
	return service.Message{Text: "👋 Session closed.\n\nThank you! Send /start whenever you want to come back."}
}

const userHelp = "Commands:\n/start - open the bot\n/menu - main menu\n/help - this help"

const operatorHelp = userHelp + "\n\nOperator commands:\n" +
	"/admin - control panel\n" +
	"/pending - resend pending claims\n" +
	"/stats - statistics\n" +
	"/users - latest users\n" +
	"/userinfo <id> - user details\n" +
	"/search <text> - find users\n" +
	"/ban <id>, /unban <id>\n" +
	"/points <id> <n> - add points\n" +
	"/send <id> <text> - message a user\n" +
	"/broadcast <text> - message everyone\n" +
	"/messages - recent messages\n" +
	"/reload - reload the catalog\n" +
	"/backup - download a snapshot"
