package pipeline

import (
	"strings"
)

// Template is a canned developer result for a recognized common request.
// Matching bypasses the model call entirely so demo requests complete
// deterministically with zero latency.
type Template struct {
	Name     string
	Keyword  string
	FileName string
	Content  string
}

// MatchTemplate returns the template whose keyword the request contains
// (case-insensitive), or nil.
func MatchTemplate(request string) *Template {
	lower := strings.ToLower(request)
	for i := range templates {
		if strings.Contains(lower, templates[i].Keyword) {
			return &templates[i]
		}
	}
	return nil
}

var templates = []Template{
	{
		Name:     "Kanban board",
		Keyword:  "kanban",
		FileName: "KanbanBoard.tsx",
		Content: `import React, { useState } from 'react';

const initialColumns = {
  todo: { title: 'To Do', cards: ['Sketch layout', 'Collect feedback'] },
  doing: { title: 'In Progress', cards: ['Build board'] },
  done: { title: 'Done', cards: ['Project kickoff'] },
};

export default function KanbanBoard() {
  const [columns, setColumns] = useState(initialColumns);
  const [draft, setDraft] = useState('');

  const addCard = (key) => {
    if (!draft.trim()) return;
    setColumns({
      ...columns,
      [key]: { ...columns[key], cards: [...columns[key].cards, draft.trim()] },
    });
    setDraft('');
  };

  const moveCard = (from, to, index) => {
    const card = columns[from].cards[index];
    setColumns({
      ...columns,
      [from]: { ...columns[from], cards: columns[from].cards.filter((_, i) => i !== index) },
      [to]: { ...columns[to], cards: [...columns[to].cards, card] },
    });
  };

  return (
    <div className="board">
      <input value={draft} onChange={(e) => setDraft(e.target.value)} placeholder="New card" />
      {Object.entries(columns).map(([key, col]) => (
        <section key={key} className="column">
          <header>
            <h2>{col.title}</h2>
            <button onClick={() => addCard(key)}>+</button>
          </header>
          {col.cards.map((card, i) => (
            <article key={i} className="card">
              {card}
              {key !== 'done' && (
                <button onClick={() => moveCard(key, key === 'todo' ? 'doing' : 'done', i)}>→</button>
              )}
            </article>
          ))}
        </section>
      ))}
    </div>
  );
}
`,
	},
	{
		Name:     "Calculator",
		Keyword:  "calculator",
		FileName: "Calculator.tsx",
		Content: `import React, { useState } from 'react';

export default function Calculator() {
  const [display, setDisplay] = useState('0');

  const press = (key) => {
    if (key === 'C') {
      setDisplay('0');
      return;
    }
    if (key === '=') {
      try {
        setDisplay(String(Function('return (' + display + ')')()));
      } catch {
        setDisplay('Error');
      }
      return;
    }
    setDisplay(display === '0' || display === 'Error' ? key : display + key);
  };

  const keys = ['7', '8', '9', '/', '4', '5', '6', '*', '1', '2', '3', '-', '0', '.', '=', '+', 'C'];

  return (
    <div className="calculator">
      <output>{display}</output>
      <div className="keys">
        {keys.map((k) => (
          <button key={k} onClick={() => press(k)}>{k}</button>
        ))}
      </div>
    </div>
  );
}
`,
	},
	{
		Name:     "Todo list",
		Keyword:  "todo",
		FileName: "TodoList.tsx",
		Content: `import React, { useState } from 'react';

export default function TodoList() {
  const [todos, setTodos] = useState([]);
  const [text, setText] = useState('');

  const add = () => {
    if (!text.trim()) return;
    setTodos([...todos, { label: text.trim(), done: false }]);
    setText('');
  };

  const toggle = (index) => {
    setTodos(todos.map((t, i) => (i === index ? { ...t, done: !t.done } : t)));
  };

  return (
    <div className="todos">
      <h1>Todo</h1>
      <input
        value={text}
        onChange={(e) => setText(e.target.value)}
        onKeyDown={(e) => e.key === 'Enter' && add()}
        placeholder="What needs doing?"
      />
      <button onClick={add}>Add</button>
      <ul>
        {todos.map((t, i) => (
          <li key={i} className={t.done ? 'done' : ''} onClick={() => toggle(i)}>
            {t.label}
          </li>
        ))}
      </ul>
    </div>
  );
}
`,
	},
	{
		Name:     "Login form",
		Keyword:  "login",
		FileName: "LoginForm.tsx",
		Content: `import React, { useState } from 'react';

export default function LoginForm() {
  const [email, setEmail] = useState('');
  const [password, setPassword] = useState('');
  const [error, setError] = useState('');

  const submit = (e) => {
    e.preventDefault();
    if (!email.includes('@')) {
      setError('Enter a valid email address.');
      return;
    }
    if (password.length < 8) {
      setError('Password must be at least 8 characters.');
      return;
    }
    setError('');
  };

  return (
    <form className="login" onSubmit={submit}>
      <h1>Sign in</h1>
      <label>
        Email
        <input type="email" value={email} onChange={(e) => setEmail(e.target.value)} />
      </label>
      <label>
        Password
        <input type="password" value={password} onChange={(e) => setPassword(e.target.value)} />
      </label>
      {error && <p className="error" role="alert">{error}</p>}
      <button type="submit">Sign in</button>
    </form>
  );
}
`,
	},
}
