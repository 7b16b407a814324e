// Package app is the interactive dashboard over the migration pipeline. The
// heavy lifting stays in crawler/migrate/archive; this model only renders
// their progress streams.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/vmrmigrate/internal/migrate"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle               = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	fileStatusStyle         = map[string]lipgloss.Style{
		"Downloading": lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"Unwrapping":  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"Writing":     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"Complete":    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"Skipped":     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		"Error":       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"Queued":      lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
	}
)

// Tasks are the operations the menu can launch. Each returns a summary line
// for the finished-task message. The cmd layer wires real collaborators in;
// the model never touches the browser or the ledger directly.
type Tasks struct {
	Crawl   func(ctx context.Context) (string, error)
	Migrate func(ctx context.Context, progress chan<- migrate.Progress) (string, error)
	FixZips func(ctx context.Context) (string, error)
}

type FileProgress struct {
	FileName string
	Status   string
	ErrMsg   string
	Start    time.Time
	Elapsed  time.Duration
}

type AppModel struct {
	Tasks            Tasks
	State            AppState
	menuChoices      []string
	menuCursor       int
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	mu             sync.RWMutex
	fileProgress   map[string]*FileProgress
	fileOrder      []string
	overallTotal   int64
	overallCurrent int64
	currentTaskTag string
	lastActivity   string
	taskStartTime  time.Time

	lastError error
	Quitting  bool

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg
}

func NewAppModel(tasks Tasks) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	prog := progress.New(progress.WithDefaultGradient())

	return &AppModel{
		Tasks:           tasks,
		State:           ShowMenu,
		menuChoices:     []string{"Crawl Records Tree", "Run Migration", "Fix Wrapped Files", "Exit"},
		menuCursor:      0,
		spinner:         s,
		overallProgress: prog,
		fileProgress:    make(map[string]*FileProgress),
		fileOrder:       make([]string, 0),
	}
}

func (m *AppModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.State {
		case ShowMenu:
			cmd = m.handleMenuKey(msg)
			cmds = append(cmds, cmd)
		case ShowError:
			if msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc || msg.String() == "q" {
				m.State = ShowMenu
				m.lastError = nil
			}
		case Exiting:
			return m, nil
		default:
			if msg.String() == "ctrl+c" || msg.String() == "q" {
				m.Quitting = true
				m.State = Exiting
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case ProgressMsg:
		m.mu.Lock()
		m.currentTaskTag = msg.Tag
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		m.mu.Unlock()
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmd = m.overallProgress.SetPercent(percent)
		cmds = append(cmds, cmd)
	case FileProgressMsg:
		m.mu.Lock()
		if _, exists := m.fileProgress[msg.FileID]; !exists {
			m.fileProgress[msg.FileID] = &FileProgress{
				FileName: msg.FileName,
				Status:   "Queued",
				Start:    time.Now(),
			}
			m.fileOrder = append(m.fileOrder, msg.FileID)
		}
		fp := m.fileProgress[msg.FileID]
		fp.Status = msg.Status
		fp.ErrMsg = msg.ErrMsg
		if msg.ElapsedTime > 0 {
			fp.Elapsed = msg.ElapsedTime
		} else if (msg.Status == "Complete" || msg.Status == "Skipped" || msg.Status == "Error") && !fp.Start.IsZero() && fp.Elapsed == 0 {
			fp.Elapsed = time.Since(fp.Start)
		}
		m.mu.Unlock()
	case TaskFinishedMsg:
		m.mu.Lock()
		log.Printf("Task '%s' finished. Duration: %s", msg.Tag, msg.EndTime.Sub(msg.StartTime).Round(time.Millisecond))
		m.State = ShowMenu
		m.fileProgress = make(map[string]*FileProgress)
		m.fileOrder = make([]string, 0)
		m.overallCurrent = 0
		m.overallTotal = 0
		m.currentTaskTag = ""
		m.lastActivity = ""
		m.uiMsgChan = nil
		m.mu.Unlock()
		if msg.Err != nil {
			m.lastError = fmt.Errorf("task '%s' failed: %w", msg.Tag, msg.Err)
			m.State = ShowError
		}
	case spinner.TickMsg:
		if m.State != ShowMenu && m.State != ShowError && m.State != Exiting {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		if m.State != ShowMenu && m.State != ShowError && m.State != Exiting {
			progModel, frameCmd := m.overallProgress.Update(msg)
			if newModel, ok := progModel.(progress.Model); ok {
				m.overallProgress = newModel
				cmds = append(cmds, frameCmd)
			}
		}
	}

	if m.uiMsgChan != nil {
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	}

	return m, tea.Batch(cmds...)
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- VMR Migration ---"))
	b.WriteString("\n\n")

	switch m.State {
	case ShowMenu:
		b.WriteString(m.viewMenu())
	case Crawling, Migrating, FixingFiles:
		b.WriteString(m.viewProgress())
	case ShowError:
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	if m.State == ShowMenu {
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select. 'q' or Ctrl+C to quit."))
	} else if m.State != Exiting && m.State != ShowError {
		b.WriteString(infoStyle.Render("Task running... 'q' or Ctrl+C to force quit."))
	} else if m.State == ShowError {
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu. 'q' or Ctrl+C to quit."))
	}

	return b.String()
}

func (m *AppModel) viewMenu() string {
	var b strings.Builder
	b.WriteString("Select an action:\n")

	for i, choice := range m.menuChoices {
		var lineContent string
		if m.menuCursor == i {
			lineContent = "> " + selectedStyle.Render(choice)
		} else {
			lineContent = "  " + choice
		}
		b.WriteString(menuStyle.Render(lineContent))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Running Task: %s %s\n", m.spinner.View(), m.currentTaskTag, m.lastActivity))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.overallCurrent, m.overallTotal))

	maxLines := m.termHeight - 10
	if maxLines < 1 {
		maxLines = 1
	}
	startIdx := 0
	if len(m.fileOrder) > maxLines {
		startIdx = len(m.fileOrder) - maxLines
	}

	if len(m.fileOrder) > 0 {
		b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-40s | %-15s | %s", "File", "Status", "Elapsed")))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", max(1, m.termWidth)))
		b.WriteString("\n")
		for i := startIdx; i < len(m.fileOrder); i++ {
			fp := m.fileProgress[m.fileOrder[i]]
			if fp == nil {
				continue
			}
			statusStyled, ok := fileStatusStyle[fp.Status]
			if !ok {
				statusStyled = infoStyle
			}
			elapsedStr := ""
			if fp.Elapsed > 0 {
				elapsedStr = fp.Elapsed.Round(time.Millisecond).String()
			} else if !fp.Start.IsZero() && fp.Status != "Queued" && fp.Status != "Complete" && fp.Status != "Error" {
				elapsedStr = time.Since(fp.Start).Round(time.Second).String() + "..."
			}
			fileName := fp.FileName
			if len(fileName) > 40 {
				fileName = fileName[:37] + "..."
			}
			line := fmt.Sprintf("%-40s | %-15s | %s", fileName, statusStyled.Render(fp.Status), elapsedStr)
			if m.termWidth > 0 && len(line) >= m.termWidth {
				line = line[:m.termWidth-1]
			}
			b.WriteString(line)
			if fp.Status == "Error" && fp.ErrMsg != "" {
				b.WriteString("\n")
				b.WriteString(errorStyle.Render("  -> Error: " + fp.ErrMsg))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("An error occurred:"))
	b.WriteString("\n\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	} else {
		b.WriteString("Unknown error.")
	}
	b.WriteString("\n")
	return b.String()
}

func (m *AppModel) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.menuChoices)-1 {
			m.menuCursor++
		}
	case "enter":
		m.lastError = nil
		m.mu.Lock()
		m.fileProgress = make(map[string]*FileProgress)
		m.fileOrder = make([]string, 0)
		m.overallCurrent = 0
		m.overallTotal = 0
		m.currentTaskTag = ""
		m.lastActivity = ""
		m.mu.Unlock()
		m.taskStartTime = time.Now()
		m.uiMsgChan = make(chan tea.Msg)
		choice := m.menuChoices[m.menuCursor]
		var taskCmd tea.Cmd
		switch choice {
		case "Crawl Records Tree":
			m.State = Crawling
			m.currentTaskTag = "Crawl"
			taskCmd = m.startSimpleTask(m.uiMsgChan, "Crawl", m.Tasks.Crawl)
		case "Run Migration":
			m.State = Migrating
			m.currentTaskTag = "Migrate"
			taskCmd = m.startMigrateTask(m.uiMsgChan)
		case "Fix Wrapped Files":
			m.State = FixingFiles
			m.currentTaskTag = "FixZips"
			taskCmd = m.startSimpleTask(m.uiMsgChan, "FixZips", m.Tasks.FixZips)
		case "Exit":
			m.Quitting = true
			m.State = Exiting
			m.uiMsgChan = nil
			return tea.Quit
		default:
			m.uiMsgChan = nil
		}
		return tea.Batch(taskCmd, m.waitForActivityCmd(m.uiMsgChan))
	case "ctrl+c", "q":
		m.Quitting = true
		m.State = Exiting
		return tea.Quit
	}
	return nil
}

func (m *AppModel) waitForActivityCmd(uiMsgChan chan tea.Msg) tea.Cmd {
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// startSimpleTask launches a task that reports no per-file progress.
func (m *AppModel) startSimpleTask(uiMsgChan chan tea.Msg, tag string, task func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		go func() {
			startTime := m.taskStartTime
			uiMsgChan <- NewProgress(tag, 0, 1, "Running...")
			summary, err := task(context.Background())
			uiMsgChan <- NewTaskFinished(tag, startTime, err, summary)
			close(uiMsgChan)
		}()
		return nil
	}
}

// startMigrateTask launches the migration run and translates its progress
// channel into dashboard messages.
func (m *AppModel) startMigrateTask(uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		// Buffered so the runner's non-blocking sends rarely drop.
		progressChan := make(chan migrate.Progress, 64)
		drained := make(chan struct{})
		go func() {
			startTime := m.taskStartTime
			var finalErr error
			var summary string
			defer func() {
				close(progressChan)
				<-drained
				uiMsgChan <- NewTaskFinished("Migrate", startTime, finalErr, summary)
				close(uiMsgChan)
			}()
			summary, finalErr = m.Tasks.Migrate(context.Background(), progressChan)
		}()
		go func() {
			defer close(drained)
			for p := range progressChan {
				uiMsgChan <- NewProgress("Migrate", int64(p.Done), int64(p.Total), p.FileName)
				errMsg := ""
				if p.Err != nil {
					errMsg = p.Err.Error()
				}
				uiMsgChan <- NewFileProgress(p.JobID, p.FileName, p.Status, 0, errMsg)
			}
		}()
		return nil
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
