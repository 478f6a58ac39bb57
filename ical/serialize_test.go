package ical_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"larder/ical"
	"larder/item"
)

func TestSerializeCompletedTask(t *testing.T) {
	parsed, err := ical.Parse(exampleCompletedTask, testURL(t), item.Synced("test-tag"))
	if err != nil {
		t.Fatal(err)
	}
	out := ical.Serialize(parsed)

	for _, line := range []string{
		"BEGIN:VCALENDAR\r\n",
		"VERSION:2.0\r\n",
		"PRODID:-//Nextcloud Tasks v0.13.6\r\n",
		"BEGIN:VTODO\r\n",
		"UID:19960401T080045Z-4000F192713-0052@example.com\r\n",
		"SUMMARY:Clean up your room or Mom will be angry\r\n",
		"DTSTAMP:20210402T081557Z\r\n",
		"LAST-MODIFIED:20210402T081557Z\r\n",
		"CREATED:20210321T001600Z\r\n",
		"STATUS:COMPLETED\r\n",
		"COMPLETED:20210402T081557Z\r\n",
		"PERCENT-COMPLETE:100\r\n",
		"END:VTODO\r\n",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in output:\n%s", line, out)
		}
	}
	if !strings.HasSuffix(out, "END:VCALENDAR\r\n") {
		t.Error("document should end with END:VCALENDAR")
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Error("all line endings should be CRLF")
	}
}

func TestSerializeUncompletedTask(t *testing.T) {
	parsed, err := ical.Parse(exampleTask, testURL(t), item.NotSynced())
	if err != nil {
		t.Fatal(err)
	}
	out := ical.Serialize(parsed)

	if !strings.Contains(out, "STATUS:NEEDS-ACTION\r\n") {
		t.Error("uncompleted tasks serialize with STATUS:NEEDS-ACTION")
	}
	if strings.Contains(out, "\nCOMPLETED:") {
		t.Error("no completion date expected in output")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	first, err := ical.Parse(exampleCompletedTask, testURL(t), item.Synced("test-tag"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := ical.Parse(ical.Serialize(first), testURL(t), item.Synced("test-tag"))
	if err != nil {
		t.Fatal(err)
	}

	a, b := first.(*item.Task), second.(*item.Task)
	if a.UID != b.UID || a.Name != b.Name || a.ProdID != b.ProdID {
		t.Error("identity fields drifted", b)
	}
	if !a.LastModified.Equal(b.LastModified) {
		t.Error("last modified drifted", a.LastModified, b.LastModified)
	}
	if !b.Completion.IsCompleted() {
		t.Error("completion drifted")
	}
	if at := b.Completion.CompletedAt(); at == nil || !at.Equal(*a.Completion.CompletedAt()) {
		t.Error("completion date drifted", at)
	}
	if len(b.CustomProperties) != 1 {
		t.Fatal("preserved properties drifted", b.CustomProperties)
	}
	if prop := b.CustomProperties[0]; prop.Name != "PERCENT-COMPLETE" || prop.Value != "100" {
		t.Error("preserved properties drifted", prop)
	}
}

func TestSerializeEvent(t *testing.T) {
	parsed, err := ical.Parse(exampleEvent, testURL(t), item.Synced("test-tag"))
	if err != nil {
		t.Fatal(err)
	}
	out := ical.Serialize(parsed)

	// zoned bounds come back out as absolute UTC instants
	for _, line := range []string{
		"BEGIN:VEVENT\r\n",
		"DTSTART:20230510T120000Z\r\n",
		"DTEND:20230510T130000Z\r\n",
		"DESCRIPTION:Bring the numbers\r\n",
		"LOCATION:Room 4\r\n",
		"SEQUENCE:2\r\n",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in output:\n%s", line, out)
		}
	}
	if strings.Index(out, "LOCATION:") > strings.Index(out, "SEQUENCE:") {
		t.Error("preserved properties should keep document order")
	}
}

func TestSerializeFoldsLongLines(t *testing.T) {
	name := strings.Repeat("é", 80) + strings.Repeat("x", 40)
	task := &item.Task{
		UID:          "folded@example.com",
		Name:         name,
		Completion:   item.Uncompleted(),
		Sync:         item.NotSynced(),
		ProdID:       item.DefaultProdID,
		LastModified: time.Date(2021, 3, 21, 0, 16, 0, 0, time.UTC),
	}
	out := ical.Serialize(task)

	for _, line := range strings.Split(out, "\r\n") {
		if len(line) > 75 {
			t.Errorf("line longer than 75 octets: %q", line)
		}
		if !utf8.ValidString(line) {
			t.Errorf("fold split a UTF-8 sequence: %q", line)
		}
	}

	parsed, err := ical.Parse(out, testURL(t), item.NotSynced())
	if err != nil {
		t.Fatal(err)
	}
	if parsed.GetName() != name {
		t.Error("unfolding should restore the name", parsed.GetName())
	}
}

func TestSerializeParamsSorted(t *testing.T) {
	task := &item.Task{
		UID:          "params@example.com",
		Name:         "Sorted",
		Completion:   item.Uncompleted(),
		Sync:         item.NotSynced(),
		ProdID:       item.DefaultProdID,
		LastModified: time.Date(2021, 3, 21, 0, 16, 0, 0, time.UTC),
		CustomProperties: []item.Property{
			{Name: "X-THING", Params: map[string][]string{"ZZZ": {"1"}, "AAA": {"2", "3"}}, Value: "v"},
		},
	}
	out := ical.Serialize(task)
	if !strings.Contains(out, "X-THING;AAA=2,3;ZZZ=1:v\r\n") {
		t.Errorf("parameters should come out sorted by key:\n%s", out)
	}
}
