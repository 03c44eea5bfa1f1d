package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

func TestParseSource(t *testing.T) {
	for _, s := range types.AllSources() {
		parsed, err := types.ParseSource(s.String())
		gt.NoError(t, err).Required()
		gt.Value(t, parsed).Equal(s)
	}

	parsed, err := types.ParseSource("search-result")
	gt.NoError(t, err).Required()
	gt.Value(t, parsed).Equal(types.SourceSearchResult)

	_, err = types.ParseSource("invalid")
	gt.Error(t, err)
}

func TestSource_ItemType(t *testing.T) {
	gt.Value(t, types.SourceCode.ItemType()).Equal(types.ItemTypeCode)
	gt.Value(t, types.SourceMessage.ItemType()).Equal(types.ItemTypeMessage)
	gt.Value(t, types.SourceSearchResult.ItemType()).Equal(types.ItemTypeSearchResult)
}
