package lpk

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/lpktest"
)

const workshopDoc = `{"Version":3,"FileReferences":{"Moc":"model.moc3","Textures":["texture_00.png","texture_01.png"]}}`

func workshopContext(fileID string) *SchemaContext {
	return &SchemaContext{
		Variant:   VariantWorkshop,
		Tag:       "STM_1_0",
		PackageID: testPkg,
		Encrypted: true,
		FileID:    fileID,
		MetaData:  "meta",
	}
}

// workshopContainer holds one document sealed under the given file id.
func workshopContainer(t *testing.T, path, fileID, entry string) *lpktest.MemContainer {
	t.Helper()
	return lpktest.NewMemContainer(path, seal(t, workshopContext(fileID), map[string]string{entry: workshopDoc}))
}

func TestFileIDCandidates(t *testing.T) {
	tests := []struct {
		name    string
		lpkFile string
		archive string
		want    []string
	}{
		{"from both", "2001.lpk", "/steam/3003.lpk", []string{"2001", "3003"}},
		{"duplicates dropped", "2001.LPK", "/steam/2001.lpk", []string{"2001"}},
		{"no lpkFile", "", "/steam/name.lpk", []string{"name"}},
		// Only the suffix is removed, never characters from the stem.
		{"stem ends in suffix letters", "", "/steam/kpl.lpk", []string{"kpl"}},
		{"nothing", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := workshopContext("")
			sc.LpkFile = tt.lpkFile
			assert.Equal(t, tt.want, fileIDCandidates(sc, tt.archive))
		})
	}
}

func TestRecover_FirstTry(t *testing.T) {
	entry := entryID(1)
	c := workshopContainer(t, "/steam/x.lpk", "2001", entry)
	sc := workshopContext("2001")
	p := &StaticPrompter{Answers: []string{"unused"}}

	plain, err := Recover(context.Background(), c, sc, entry, p, nil)
	require.NoError(t, err)
	assert.Equal(t, workshopDoc, string(plain))
	assert.Equal(t, 0, p.next, "prompter must not be consulted")
}

func TestRecover_ArchiveNameCandidate(t *testing.T) {
	entry := entryID(1)
	c := workshopContainer(t, "/steam/2001.lpk", "2001", entry)
	sc := workshopContext("wrong")

	plain, err := Recover(context.Background(), c, sc, entry, NoPrompter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, workshopDoc, string(plain))
	assert.Equal(t, "2001", sc.FileID, "recovered id persists")
}

func TestRecover_OperatorAnswer(t *testing.T) {
	entry := entryID(1)
	c := workshopContainer(t, "/steam/renamed.lpk", "2001", entry)
	sc := workshopContext("wrong")
	p := &StaticPrompter{Answers: []string{"", "bad", "2001"}}

	plain, err := Recover(context.Background(), c, sc, entry, p, nil)
	require.NoError(t, err)
	assert.Equal(t, workshopDoc, string(plain))
	assert.Equal(t, "2001", sc.FileID)
}

func TestRecover_Exhausted(t *testing.T) {
	entry := entryID(1)
	c := workshopContainer(t, "/steam/renamed.lpk", "2001", entry)
	sc := workshopContext("wrong")
	p := &StaticPrompter{Answers: []string{"a", "b", "c", "2001"}}

	_, err := Recover(context.Background(), c, sc, entry, p, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFatalConfig))
	assert.Equal(t, errors.StageRecovery, errors.StageOf(err))
	assert.Equal(t, "wrong", sc.FileID, "original id restored")
	assert.Equal(t, maxPromptAttempts, p.next, "at most three operator answers")
}

func TestRecover_NonWorkshopFailsFast(t *testing.T) {
	entry := entryID(1)
	sc := standardContext()
	c := lpktest.NewMemContainer("/a.lpk", map[string][]byte{
		entry: Encrypt(DeriveKey("other"+entry), []byte(workshopDoc)),
	})
	p := &StaticPrompter{Answers: []string{"x"}}

	_, err := Recover(context.Background(), c, sc, entry, p, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDecodeFailure))
	assert.Equal(t, 0, p.next)
}

func TestRecover_MissingEntry(t *testing.T) {
	c := lpktest.NewMemContainer("/a.lpk", map[string][]byte{})
	_, err := Recover(context.Background(), c, standardContext(), entryID(7), nil, nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRecover_PlaintextWorkshop(t *testing.T) {
	entry := entryID(1)
	sc := workshopContext("2001")
	sc.Encrypted = false
	c := lpktest.NewMemContainer("/a.lpk", map[string][]byte{entry: []byte(workshopDoc)})

	plain, err := Recover(context.Background(), c, sc, entry, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, workshopDoc, string(plain))
}

func TestTerminalPrompter(t *testing.T) {
	var out bytes.Buffer
	p := &TerminalPrompter{In: strings.NewReader("  2001 \nsecond\n"), Out: &out}

	answer, err := p.PromptFileID(context.Background(), "/steam/renamed.lpk")
	require.NoError(t, err)
	assert.Equal(t, "2001", answer)
	assert.Contains(t, out.String(), "renamed.lpk")
	assert.Contains(t, out.String(), "steamapps/workshop/content/616720")

	answer, err = p.PromptFileID(context.Background(), "/steam/renamed.lpk")
	require.NoError(t, err)
	assert.Equal(t, "second", answer)

	_, err = p.PromptFileID(context.Background(), "/steam/renamed.lpk")
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestTerminalPrompter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &TerminalPrompter{In: strings.NewReader("2001\n"), Out: &bytes.Buffer{}}
	_, err := p.PromptFileID(ctx, "a.lpk")
	assert.ErrorIs(t, err, context.Canceled)
}
