package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<nav>
	<a href="/user/alice">  alice
		(profile) </a>
	<a href="/user/logout">Log out</a>
	<a>no href</a>
</nav>
<form>
	<input type="hidden" name="form_id" value="classified_bump_form">
	<input type="HIDDEN" name="form_token" value="abc123">
	<input name="title" value="Job">
</form>
</body></html>`

func parse(t testing.TB) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestGetAnchors(t *testing.T) {
	anchors := GetAnchors(parse(t).Find("a"))
	require.Equal(t, []Anchor{
		{Name: "alice (profile)", Href: "/user/alice"},
		{Name: "Log out", Href: "/user/logout"},
	}, anchors)
}

func TestGetInputs(t *testing.T) {
	inputs := GetInputs(parse(t).Find("input"))
	require.Equal(t, []Input{
		{Name: "form_id", Type: "hidden", Value: "classified_bump_form"},
		{Name: "form_token", Type: "hidden", Value: "abc123"},
		{Name: "title", Type: "", Value: "Job"},
	}, inputs)
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b c", CleanText("  a\t\tb \n\n c \x00"))
}
