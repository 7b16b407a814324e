package vmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrid(t *testing.T) {
	html := `
	<table>
	  <tr onclick="getFolderandFileList('1234')">
	    <td><span class="mail-sender"> Payroll </span></td>
	  </tr>
	  <tr onclick="viewDocument('5678')">
	    <td><span class="mail-sender">payslip.pdf</span></td>
	    <td><a href="/download?id=5678">download</a></td>
	  </tr>
	  <tr>
	    <td><span class="mail-sender" onclick="getFolderandFileList('9999')">Active</span></td>
	  </tr>
	  <tr><td><span class="mail-sender">   </span></td></tr>
	</table>`

	entries, err := ParseGrid(html)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Payroll", entries[0].Name)
	assert.True(t, entries[0].IsFolder)

	assert.Equal(t, "payslip.pdf", entries[1].Name)
	assert.False(t, entries[1].IsFolder)
	assert.Equal(t, "/download?id=5678", entries[1].Href)

	assert.Equal(t, "Active", entries[2].Name)
	assert.True(t, entries[2].IsFolder)
}

func TestParseGridEmpty(t *testing.T) {
	entries, err := ParseGrid("<html><body><p>no grid here</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
